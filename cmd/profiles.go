package cmd

import (
	"fmt"
	"strings"

	"github.com/CanopyHQ/heartwood/internal/config"
	"github.com/CanopyHQ/heartwood/internal/profile"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage tuning profiles",
	Long: `List and inspect tuning profiles.

Built-in profiles ship with the binary; user profiles are YAML files in
<data-dir>/profiles/ and shadow built-ins of the same name. A profile
fully determines the engine parameters, so runs are keyed by profile
content rather than profile name.

Examples:
  heartwood profiles list
  heartwood profiles show sparse-pbp`,
	RunE: func(cmd *cobra.Command, args []string) error { return cmd.Help() },
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProfilesList()
	},
}

var profilesShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a profile's parameters",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProfilesShow(args[0])
	},
}

func init() {
	profilesCmd.AddCommand(profilesListCmd)
	profilesCmd.AddCommand(profilesShowCmd)
}

func profilesDataDir() (string, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return "", err
	}
	return cfg.Data.Resolve()
}

func runProfilesList() error {
	dataDir, err := profilesDataDir()
	if err != nil {
		return err
	}
	entries, err := profile.List(dataDir)
	if err != nil {
		return err
	}

	fmt.Printf("%-16s %-8s %s\n", "NAME", "SOURCE", "DESCRIPTION")
	for _, e := range entries {
		fmt.Printf("%-16s %-8s %s\n", e.Name, e.Source, e.Description)
	}
	fmt.Printf("\nUser profiles live in %s\n", profile.UserDir(dataDir))
	return nil
}

func runProfilesShow(name string) error {
	dataDir, err := profilesDataDir()
	if err != nil {
		return err
	}
	p, err := profile.Load(dataDir, name)
	if err != nil {
		return err
	}

	fmt.Printf("Profile: %s\n", p.Name)
	if p.Description != "" {
		fmt.Printf("%s\n", p.Description)
	}
	fmt.Println()

	data, err := yaml.Marshal(p.Params)
	if err != nil {
		return fmt.Errorf("failed to encode parameters: %w", err)
	}
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		fmt.Printf("  %s\n", line)
	}
	return nil
}
