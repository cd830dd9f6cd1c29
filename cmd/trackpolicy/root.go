package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "trackpolicy",
		Short:         "Inspect change-tracking exclusion policies",
		Long:          "Reads YAML or JSON policy documents, reports what they exclude\nand evaluates single members or types against them.\nRules may call glob(name, pattern) and oneof(value, candidates...).",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newValidateCmd(), newCheckCmd())
	return root
}
