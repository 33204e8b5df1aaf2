package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/CanopyHQ/heartwood/internal/render"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export <run> [format] [output-file]",
	Short: "Export an archived run",
	Long: `Export an archived run as json (the full archive record), markdown
(the run report), or dot (Graphviz hierarchy).

The default format is json. With no output file the export is written to
heartwood-<run-id>.<ext> in the current directory; use - for stdout.

Examples:
  heartwood export crypt-run-07
  heartwood export ab12cd34 markdown report.md
  heartwood export ab12cd34 dot - | dot -Tsvg > run.svg`,
	Args: cobra.RangeArgs(1, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		format := "json"
		output := ""
		if len(args) > 1 {
			format = args[1]
		}
		if len(args) > 2 {
			output = args[2]
		}
		return runExport(args[0], format, output)
	},
}

func runExport(ref, format, output string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := resolveRun(context.Background(), st, ref)
	if err != nil {
		return err
	}

	var content []byte
	var ext string
	switch format {
	case "json":
		content, err = json.MarshalIndent(run, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode run: %w", err)
		}
		content = append(content, '\n')
		ext = "json"
	case "markdown", "md":
		content = []byte(render.Report(run))
		ext = "md"
	case "dot":
		content = []byte(render.DOT(run))
		ext = "dot"
	default:
		return fmt.Errorf("unknown export format %q (want json, markdown, or dot)", format)
	}

	if output == "-" {
		_, err := os.Stdout.Write(content)
		return err
	}
	if output == "" {
		output = fmt.Sprintf("heartwood-%s.%s", run.Info.ID, ext)
	}
	if err := os.WriteFile(output, content, 0644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	fmt.Printf("✅ Exported run %s to %s\n", run.Info.ID, output)
	return nil
}
