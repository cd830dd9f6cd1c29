package main

import (
	"fmt"

	"github.com/spf13/cobra"

	track "github.com/goliatone/go-tracking"
)

type checkFlags struct {
	owner    string
	member   string
	typeName string
	kind     string
}

func newCheckCmd() *cobra.Command {
	var flags checkFlags
	cmd := &cobra.Command{
		Use:   "check FILE",
		Short: "Report whether a member or type is excluded by a policy file",
		Long: "With --kind type only --type is consulted and the type rules apply.\n" +
			"Any other kind evaluates the member identified by --owner and --member.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := track.LoadPolicyFile(args[0], track.PolicyWithFunctions(track.MemberFunctions()))
			if err != nil {
				return err
			}
			excluded, subject, err := evaluate(policy, flags)
			if err != nil {
				return err
			}
			verdict := "tracked"
			if excluded {
				verdict = "excluded"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", subject, verdict)
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.owner, "owner", "", "Owning type name")
	cmd.Flags().StringVar(&flags.member, "member", "", "Member name")
	cmd.Flags().StringVar(&flags.typeName, "type", "", "Member type name, or the type to check with --kind type")
	cmd.Flags().StringVar(&flags.kind, "kind", "scalar", "Member kind (scalar|complex|collection) or type")
	return cmd
}

func evaluate(policy *track.Policy, flags checkFlags) (bool, string, error) {
	if flags.kind == "type" {
		if flags.typeName == "" {
			return false, "", fmt.Errorf("--type is required with --kind type")
		}
		excluded, err := policy.IsExcludedType(flags.typeName)
		return excluded, "type " + flags.typeName, err
	}
	if flags.owner == "" || flags.member == "" {
		return false, "", fmt.Errorf("--owner and --member are required")
	}
	kind, err := track.ParseKind(flags.kind)
	if err != nil {
		return false, "", err
	}
	excluded, err := policy.IsExcluded(track.Member{
		Owner: flags.owner,
		Name:  flags.member,
		Type:  flags.typeName,
		Kind:  kind,
	})
	return excluded, fmt.Sprintf("member %s.%s", flags.owner, flags.member), err
}
