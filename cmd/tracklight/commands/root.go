package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	baseURL  string
	username string
	password string
	profile  string
	format   string
	quiet    bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "tracklight",
	Short: "CLI tool for managing visitor tracking rules and snippets",
	Long: `Tracklight is a command-line tool for administering a tracklight server.

It provides commands for managing targeting rules and script snippets,
executing snippets against live sessions, and inspecting visit stats.

Examples:
  tracklight rules list
  tracklight snippets create --name promo --file promo.js
  tracklight snippets execute <id>
  tracklight stats`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Base URL of the tracklight API")
	rootCmd.PersistentFlags().StringVar(&username, "username", "", "Admin username")
	rootCmd.PersistentFlags().StringVar(&password, "password", "", "Admin password")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "Config profile to use")
	rootCmd.PersistentFlags().StringVar(&format, "format", "table", "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress output")
}
