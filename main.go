// Heartwood - causal hierarchy extraction for session transcripts
// Deterministic cause→effect analysis via CLI and Model Context Protocol
package main

import (
	"fmt"
	"os"

	"github.com/CanopyHQ/heartwood/cmd"

	_ "github.com/joho/godotenv/autoload"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd.SetVersion(version, commit, date)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
