package cmd

import (
	"context"
	"fmt"

	"github.com/CanopyHQ/heartwood/internal/render"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit <run>",
	Short: "Explain what a run left unresolved",
	Long: `Explain what a run left unresolved and why.

Without flags the audit covers both unclaimed causes (lines that never
claimed an effect) and the unabsorbed pool (residual effects no composite
absorbed). When the run was analyzed with --traces, each entry carries
the candidates that were considered and why each one was passed over.

Examples:
  heartwood audit crypt-run-07
  heartwood audit ab12cd34 --unclaimed
  heartwood audit ab12cd34 --node m-00012`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		unclaimed, _ := cmd.Flags().GetBool("unclaimed")
		unabsorbed, _ := cmd.Flags().GetBool("unabsorbed")
		node, _ := cmd.Flags().GetString("node")
		return runAudit(args[0], unclaimed, unabsorbed, node)
	},
}

func init() {
	auditCmd.Flags().Bool("unclaimed", false, "Only the unclaimed causes section")
	auditCmd.Flags().Bool("unabsorbed", false, "Only the unabsorbed pool section")
	auditCmd.Flags().String("node", "", "Audit a single node or singleton id")
}

func runAudit(ref string, unclaimed, unabsorbed bool, node string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := resolveRun(context.Background(), st, ref)
	if err != nil {
		return err
	}

	if node != "" {
		out, err := render.NodeAudit(run, node)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	}

	sections := render.AuditSections{Unclaimed: unclaimed, Unabsorbed: unabsorbed}
	if !unclaimed && !unabsorbed {
		sections = render.AuditSections{Unclaimed: true, Unabsorbed: true}
	}
	fmt.Println(render.AuditFiltered(run, sections))
	return nil
}
