package cmd

import (
	"context"
	"fmt"

	"github.com/CanopyHQ/heartwood/internal/render"
	"github.com/spf13/cobra"
)

var traceCmd = &cobra.Command{
	Use:   "trace <run> <node>",
	Short: "Walk a node's neighborhood",
	Long: `Walk a node's neighborhood: its members, the context that absorbed
into it, and theirs, out to the given depth.

Examples:
  heartwood trace crypt-run-07 m-00012
  heartwood trace ab12cd34 s-00003 --depth 3`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		depth, _ := cmd.Flags().GetInt("depth")
		return runTrace(args[0], args[1], depth)
	},
}

func init() {
	traceCmd.Flags().Int("depth", 2, "Hops to walk from the node")
}

func runTrace(ref, nodeID string, depth int) error {
	if depth < 1 {
		return fmt.Errorf("--depth must be at least 1")
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := resolveRun(context.Background(), st, ref)
	if err != nil {
		return err
	}

	out, err := render.NeighborTrace(run, nodeID, depth)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}
