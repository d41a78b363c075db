package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cortexkernel/datalogcore/internal/syntax"
)

func newLoadCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "load <program-file>",
		Short: "Parse a program file and report rule/fact counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			total := 0
			for _, facts := range pp.facts {
				total += len(facts)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rules: %d\nfacts: %d\nrelations with facts: %d\n",
				len(program.Rules), total, len(pp.facts))
			return nil
		},
	}
}
