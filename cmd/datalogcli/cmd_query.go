package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cortexkernel/datalogcore/internal/engine"
	"github.com/cortexkernel/datalogcore/internal/syntax"
)

func newQueryCmd(configPath *string) *cobra.Command {
	var queryStr string

	cmd := &cobra.Command{
		Use:   "query <program-file>",
		Short: "Load a program and facts, poll, and run one query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if queryStr == "" {
				return fmt.Errorf("--query is required")
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			pp, err := parseProgramFile(f)
			if err != nil {
				return fmt.Errorf("parse: %w", err)
			}
			program, err := syntax.From(pp.rules)
			if err != nil {
				return fmt.Errorf("program: %w", err)
			}

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			eng, err := engine.New(program, engine.WithConfig(cfg), engine.WithLogger(newLogger()))
			if err != nil {
				return fmt.Errorf("engine: %w", err)
			}

			for relation, facts := range pp.facts {
				for _, fact := range facts {
					eng.Insert(relation, fact)
				}
			}

			ctx := context.Background()
			if err := eng.Poll(ctx); err != nil {
				return fmt.Errorf("poll: %w", err)
			}

			q, err := parseMatchers(queryStr)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			rows, err := eng.Query(q)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			for _, row := range rows {
				strs := make([]string, len(row))
				for i, v := range row {
					strs[i] = v.String()
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s(%s)\n", q.Symbol, strings.Join(strs, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&queryStr, "query", "", `query pattern, e.g. "tc(a, _)"`)
	return cmd
}
