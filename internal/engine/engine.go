// Package engine implements the runtime façade: it
// owns all mutable engine state, wires the stratification, semi-naive,
// magic-sets, DRed, and subsumptive-tabling components together, and
// exposes the small public surface — Insert, Remove, Poll, Contains,
// Query, QueryProgram — that is the only thing a caller ever touches.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cortexkernel/datalogcore/internal/compiler"
	"github.com/cortexkernel/datalogcore/internal/config"
	"github.com/cortexkernel/datalogcore/internal/dred"
	"github.com/cortexkernel/datalogcore/internal/engineerrors"
	"github.com/cortexkernel/datalogcore/internal/magic"
	"github.com/cortexkernel/datalogcore/internal/seminaive"
	"github.com/cortexkernel/datalogcore/internal/stratify"
	"github.com/cortexkernel/datalogcore/internal/storage"
	"github.com/cortexkernel/datalogcore/internal/syntax"
	"github.com/cortexkernel/datalogcore/internal/tabling"
)

// Strategy names accepted by QueryProgram.
const (
	StrategyBottomUp = "Bottom-up"
	StrategyTopDown  = "Top-down"
)

// Engine is the runtime façade. A single instance owns all mutable
// state for one conceptual database; re-entry is safe provided distinct
// instances are used per database. All public methods run to completion
// under a single mutex before returning — there is no concurrency
// promise beyond that (the rule evaluator's internal two-way join split
// is an implementation detail invisible at this boundary).
type Engine struct {
	mu sync.RWMutex

	id     uuid.UUID
	cfg    *config.Config
	logger *zap.Logger

	original   syntax.Program
	overdelete syntax.Program
	rederive   syntax.Program
	evaluator  *compiler.Evaluator
	relStore   *storage.RelationStorage
	tableEval  *tabling.Evaluator

	pendingInserts map[string]*storage.FactSet
	pendingDeletes map[string][]*storage.Fact
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger overrides the nop default logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithConfig overrides config.DefaultConfig().
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// New builds an Engine over program: it validates the program (range
// restriction, arity consistency, reserved symbols, stratifiable
// negation — program.From already checked the first three; this layer
// additionally stratifies the original, its DRed overdeletion program,
// and its rederivation program, failing fast if any of the three is not
// stratifiable), and preallocates relation storage for every predicate
// symbol mentioned across all three.
func New(program syntax.Program, opts ...Option) (*Engine, error) {
	e := &Engine{
		id:             uuid.New(),
		cfg:            config.DefaultConfig(),
		logger:         zap.NewNop(),
		original:       program,
		pendingInserts: make(map[string]*storage.FactSet),
		pendingDeletes: make(map[string][]*storage.Fact),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("datalogcore").With(zap.String("engine_id", e.id.String()))

	if _, err := stratify.Strata(program); err != nil {
		return nil, err
	}

	overdelete, err := dred.MakeOverdeletionProgram(program)
	if err != nil {
		return nil, err
	}
	rederive, err := dred.MakeRederivationProgram(program)
	if err != nil {
		return nil, err
	}
	if _, err := stratify.Strata(overdelete); err != nil {
		return nil, fmt.Errorf("engine: overdeletion program: %w", err)
	}
	if _, err := stratify.Strata(rederive); err != nil {
		return nil, fmt.Errorf("engine: rederivation program: %w", err)
	}
	e.overdelete = overdelete
	e.rederive = rederive

	symbols := allSymbols(program, overdelete, rederive)
	e.relStore = storage.NewRelationStorage(symbols)
	e.evaluator = compiler.NewEvaluator(e.cfg.ConcurrentJoins)

	e.logger.Info("engine constructed",
		zap.Int("rules", len(program.Rules)),
		zap.Int("relations", len(symbols)))
	return e, nil
}

func allSymbols(programs ...syntax.Program) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range programs {
		for _, a := range p.AllAtoms() {
			if _, ok := seen[a.Symbol]; !ok {
				seen[a.Symbol] = struct{}{}
				out = append(out, a.Symbol)
			}
		}
	}
	return out
}

// IsDirty reports whether any insertion or deletion is buffered and not
// yet applied by Poll.
func (e *Engine) IsDirty() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isDirtyLocked()
}

func (e *Engine) isDirtyLocked() bool {
	return len(e.pendingInserts) > 0 || len(e.pendingDeletes) > 0
}

// Insert buffers fact for relation, returning whether it is novel
// relative to the unprocessed insertion buffer (not relative to
// processed storage — a fact already processed but re-inserted before
// the next Poll still reports true here; Poll's own RelationStorage
// insert is what makes it idempotent against prior state).
func (e *Engine) Insert(relation string, fact *storage.Fact) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	fs, ok := e.pendingInserts[relation]
	if !ok {
		fs = storage.NewFactSet()
		e.pendingInserts[relation] = fs
	}
	novel := fs.Insert(fact)
	if novel {
		e.logger.Debug("buffered insertion", zap.String("relation", relation), zap.String("fact", fact.Key()))
	}
	return novel
}

// Remove computes the tuples in processed storage matching query and
// buffers them as pending deletions, applied on the next Poll via DRed.
// Remove does not itself require the engine to be safe: it only reads
// the already-processed relation named by the query.
func (e *Engine) Remove(query syntax.Query) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, f := range e.relStore.GetRelation(query.Symbol).Facts() {
		if query.Matches(f.Values) {
			e.pendingDeletes[query.Symbol] = append(e.pendingDeletes[query.Symbol], f)
		}
	}
}

// Poll applies buffered deletions first (via DRed: overdeletion,
// removal, rederivation, cleanup), then flushes buffered insertions into
// processed storage and runs the semi-naive driver over the original
// program to a fresh fixpoint. After Poll returns successfully, the
// engine is safe: both buffers are empty.
func (e *Engine) Poll(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.pendingDeletes) > 0 {
		if err := dred.Apply(ctx, e.overdelete, e.rederive, e.relStore, e.evaluator, e.pendingDeletes, e.logger); err != nil {
			return fmt.Errorf("engine: poll: dred: %w", err)
		}
		e.pendingDeletes = make(map[string][]*storage.Fact)
	}

	for relation, fs := range e.pendingInserts {
		e.relStore.InsertAll(relation, fs.Facts())
	}
	e.pendingInserts = make(map[string]*storage.FactSet)

	if err := seminaive.Run(ctx, e.original, e.relStore, e.evaluator, e.logger); err != nil {
		return fmt.Errorf("engine: poll: semi-naive: %w", err)
	}

	e.tableEval = nil // the subsumptive cache is keyed to a storage snapshot

	if e.cfg.FactLimit > 0 && e.relStore.Len() > e.cfg.FactLimit {
		e.logger.Warn("fact limit exceeded", zap.Int("limit", e.cfg.FactLimit), zap.Int("total", e.relStore.Len()))
	}
	e.logger.Info("poll complete", zap.Int("total_facts", e.relStore.Len()))
	return nil
}

// Contains reports whether fact is present in relation's processed
// storage. Fails with ErrNotSafe if a buffer is dirty.
func (e *Engine) Contains(relation string, fact *storage.Fact) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.isDirtyLocked() {
		return false, engineerrors.ErrNotSafe
	}
	return e.relStore.Contains(relation, fact), nil
}

// Query streams tuples matching query from processed storage. Fails
// with ErrNotSafe if a buffer is dirty.
func (e *Engine) Query(query syntax.Query) ([][]syntax.Value, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.isDirtyLocked() {
		return nil, engineerrors.ErrNotSafe
	}
	return matchRelation(e.relStore, query), nil
}

func matchRelation(relStore *storage.RelationStorage, query syntax.Query) [][]syntax.Value {
	var out [][]syntax.Value
	for _, f := range relStore.GetRelation(query.Symbol).Facts() {
		if query.Matches(f.Values) {
			out = append(out, f.Values)
		}
	}
	return out
}

// QueryProgram answers a demand query over program's rules and the
// engine's processed facts without materializing the entire fixpoint:
// strategy "Bottom-up" applies the magic-sets transformer and reuses the
// semi-naive driver against a scratch relation storage seeded from the
// current processed EDB facts, which is discarded on return; strategy
// "Top-down" invokes the subsumptive evaluator against program and
// processed storage. When program equals the engine's own, the top-down
// answer cache persists across calls until the next Poll invalidates
// it; for any other program a throwaway evaluator serves the single
// call. Any other strategy fails with ErrUnknownStrategy. Fails with
// ErrNotSafe if a buffer is dirty.
func (e *Engine) QueryProgram(ctx context.Context, query syntax.Query, program syntax.Program, strategy string) ([][]syntax.Value, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.isDirtyLocked() {
		return nil, engineerrors.ErrNotSafe
	}

	if e.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.QueryTimeout)
		defer cancel()
	}

	switch strategy {
	case StrategyBottomUp:
		return e.queryBottomUp(ctx, query, program)
	case StrategyTopDown:
		return e.queryTopDown(ctx, query, program)
	default:
		return nil, fmt.Errorf("%w: %q", engineerrors.ErrUnknownStrategy, strategy)
	}
}

func (e *Engine) queryBottomUp(ctx context.Context, query syntax.Query, program syntax.Program) ([][]syntax.Value, error) {
	result, err := magic.Transform(program, query)
	if err != nil {
		return nil, fmt.Errorf("engine: magic transform: %w", err)
	}
	if result.SeedSymbol == "" {
		// query names a base predicate; no transformation applies.
		return matchRelation(e.relStore, syntax.NewQuery(result.ResultSymbol, query.Matchers...)), nil
	}

	adorned := syntax.Program{Rules: result.Program.Rules}
	symbols := allSymbols(adorned)
	symbols = append(symbols, result.SeedSymbol)
	scratch := storage.NewRelationStorage(symbols)

	// Seed the EDB: every symbol the adorned program reads that is not
	// itself produced by one of its own rules draws from the original
	// program's base (and already-derived) processed facts.
	headSymbols := adorned.HeadSymbols()
	for _, s := range symbols {
		if _, isHead := headSymbols[s]; isHead {
			continue
		}
		scratch.InsertAll(s, e.relStore.GetRelation(s).Facts())
	}

	scratch.InsertAll(result.SeedSymbol, []*storage.Fact{storage.NewFact(result.SeedTuple...)})

	if err := seminaive.Run(ctx, adorned, scratch, e.evaluator, e.logger); err != nil {
		return nil, fmt.Errorf("engine: magic bottom-up: %w", err)
	}

	out := matchRelation(scratch, syntax.NewQuery(result.ResultSymbol, query.Matchers...))
	return out, nil
}

// TopDownRuleEntries reports how many times the persistent subsumptive
// evaluator has actually entered rule evaluation (as opposed to
// answering from its cache) across every Top-down QueryProgram call so
// far. Exposed for instrumentation scenarios that observe subsumption
// cache reuse; zero if Top-down has never been invoked.
func (e *Engine) TopDownRuleEntries() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.tableEval == nil {
		return 0
	}
	return e.tableEval.RuleEntries
}

func (e *Engine) queryTopDown(ctx context.Context, query syntax.Query, program syntax.Program) ([][]syntax.Value, error) {
	eval := e.tableEval
	if program.Equal(e.original) {
		if eval == nil {
			eval = tabling.NewEvaluator(e.original, e.relStore)
			e.tableEval = eval
		}
	} else {
		eval = tabling.NewEvaluator(program, e.relStore)
	}
	facts, err := eval.Evaluate(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("engine: top-down: %w", err)
	}
	out := make([][]syntax.Value, len(facts))
	for i, f := range facts {
		out[i] = f.Values
	}
	return out, nil
}
