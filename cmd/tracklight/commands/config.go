package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tracklight/internal/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long:  `Manage the tracklight CLI configuration file.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	Long: `Create a default configuration file at ~/.tracklight/config.yaml

Example:
  tracklight config init`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cli.InitConfig(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		configPath, _ := cli.GetConfigPath()
		fmt.Printf("Configuration file created at: %s\n", configPath)
		fmt.Println("\nPlease edit the file to set your server URL and credentials.")

		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		fmt.Printf("Default Profile: %s\n\n", cfg.DefaultProfile)
		fmt.Println("Profiles:")
		for name, p := range cfg.Profiles {
			fmt.Printf("  %s:\n", name)
			fmt.Printf("    base_url: %s\n", p.BaseURL)
			fmt.Printf("    username: %s\n", p.Username)
			fmt.Printf("    password: ***\n")
		}

		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <profile.key> <value>",
	Short: "Set a configuration value",
	Long: `Set a specific configuration value.

Examples:
  tracklight config set default.base_url http://localhost:8080
  tracklight config set default.username admin`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		parts := strings.Split(args[0], ".")
		if len(parts) != 2 {
			return fmt.Errorf("invalid key format, expected 'profile.key' (e.g., 'default.base_url')")
		}

		profileName := parts[0]
		key := parts[1]
		value := args[1]

		if cfg.Profiles == nil {
			cfg.Profiles = make(map[string]cli.ProfileConfig)
		}
		p := cfg.Profiles[profileName]

		switch key {
		case "base_url":
			p.BaseURL = value
		case "username":
			p.Username = value
		case "password":
			p.Password = value
		default:
			return fmt.Errorf("unknown key '%s', valid keys: base_url, username, password", key)
		}

		cfg.Profiles[profileName] = p

		if err := cli.SaveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Printf("Successfully set %s.%s\n", profileName, key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configSetCmd)
}
