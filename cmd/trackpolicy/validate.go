package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	track "github.com/goliatone/go-tracking"
)

type policySummary struct {
	Source  string   `json:"source"`
	Engine  string   `json:"engine"`
	Types   []string `json:"types"`
	Members []string `json:"members"`
	Rules   []string `json:"rules"`
}

func newValidateCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Parse a policy file, compile its rules and print a summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := summarize(args[0])
			if err != nil {
				return err
			}
			return writeSummary(cmd.OutOrStdout(), summary, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format (text|json)")
	return cmd
}

func summarize(path string) (policySummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return policySummary{}, fmt.Errorf("read policy: %w", err)
	}
	doc, err := track.ParsePolicyFile(path, data)
	if err != nil {
		return policySummary{}, err
	}
	policy, err := doc.Build(track.PolicyWithFunctions(track.MemberFunctions()))
	if err != nil {
		return policySummary{}, err
	}
	engine := doc.Engine
	if engine == "" {
		engine = "expr"
	}
	return policySummary{
		Source:  path,
		Engine:  engine,
		Types:   policy.Types(),
		Members: policy.Members(),
		Rules:   policy.Rules(),
	}, nil
}

func writeSummary(w io.Writer, s policySummary, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case "text", "":
		fmt.Fprintf(w, "policy %s is valid (engine %s)\n", s.Source, s.Engine)
		writeList(w, "types", s.Types)
		writeList(w, "members", s.Members)
		writeList(w, "rules", s.Rules)
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func writeList(w io.Writer, label string, items []string) {
	fmt.Fprintf(w, "%s: %d\n", label, len(items))
	for _, item := range items {
		fmt.Fprintf(w, "  - %s\n", item)
	}
}
