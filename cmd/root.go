package cmd

import (
	"github.com/spf13/cobra"
)

// Build-time variables
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// SetVersion sets the version info from main
func SetVersion(v, c, d string) {
	Version = v
	Commit = c
	Date = d
}

var rootCmd = &cobra.Command{
	Use:   "heartwood",
	Short: "Heartwood - causal hierarchy extraction for session transcripts",
	Long: `Deterministic cause-and-effect extraction from session transcripts.

Heartwood turns tabletop and play-by-post logs into a multi-level
hierarchy of cause -> effect links, archives every run keyed by its
parameters, and renders reports, audits, and graphs from the archive.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the heartwood command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// analyze (defined in analyze.go)
	rootCmd.AddCommand(analyzeCmd)

	// runs list|show|delete|prune, status (defined in runs.go)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(statusCmd)

	// audit, trace (defined in audit.go, trace.go)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(traceCmd)

	// export (defined in export.go)
	rootCmd.AddCommand(exportCmd)

	// search (defined in search.go)
	rootCmd.AddCommand(searchCmd)

	// profiles list|show (defined in profiles.go)
	rootCmd.AddCommand(profilesCmd)

	// watch (defined in watch.go)
	rootCmd.AddCommand(watchCmd)

	// serve, version (defined in serve.go)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	// doctor (defined in doctor.go)
	rootCmd.AddCommand(doctorCmd)

	// setup (defined in setup.go)
	rootCmd.AddCommand(setupCmd)
}
