// Package engineerrors defines the sentinel error taxonomy shared across
// program construction and façade runtime calls.
package engineerrors

import "errors"

// Construction-time errors. Returned wrapped with context via fmt.Errorf
// and %w, so callers can still errors.Is against the sentinel.
var (
	// ErrUnstratifiableNegation: a negated body literal's predicate lies in
	// the same stratum as the rule's own head.
	ErrUnstratifiableNegation = errors.New("unstratifiable negation")

	// ErrUnsafeRule: a variable appears in the head but not in the body.
	ErrUnsafeRule = errors.New("unsafe rule: head variable not range-restricted")

	// ErrArityMismatch: a predicate symbol is used with more than one arity.
	ErrArityMismatch = errors.New("arity mismatch for predicate symbol")

	// ErrReservedSymbol: a user symbol collides with a reserved prefix or
	// adornment suffix.
	ErrReservedSymbol = errors.New("predicate symbol uses a reserved prefix or adornment suffix")
)

// Runtime errors. Each call can fail with at most one of these.
var (
	// ErrNotSafe: Query/Contains/etc. called while insert/delete buffers
	// are non-empty. Recoverable by calling Poll.
	ErrNotSafe = errors.New("engine is not safe: pending insertions or deletions, call Poll first")

	// ErrUnknownStrategy: QueryProgram received a strategy outside the
	// accepted set.
	ErrUnknownStrategy = errors.New("unknown query strategy")
)
