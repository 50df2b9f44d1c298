package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tracklight/internal/cli"
	"tracklight/internal/client"
)

var (
	snippetName string
	snippetFile string
)

var snippetsCmd = &cobra.Command{
	Use:   "snippets",
	Short: "Manage script snippets",
}

var snippetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all snippets",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		snippets, err := c.ListSnippets(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list snippets: %w", err)
		}

		if quiet {
			return nil
		}
		if len(snippets) == 0 {
			fmt.Println("No snippets found")
			return nil
		}
		return cli.PrintSnippets(snippets, cli.OutputFormat(format))
	},
}

func snippetParams() (client.SnippetParams, error) {
	script, err := os.ReadFile(snippetFile)
	if err != nil {
		return client.SnippetParams{}, fmt.Errorf("failed to read script file: %w", err)
	}
	return client.SnippetParams{Name: snippetName, Script: string(script)}, nil
}

var snippetsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a snippet from a script file",
	Long: `Create a snippet from a script file.

Examples:
  tracklight snippets create --name promo --file promo.js`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		params, err := snippetParams()
		if err != nil {
			return err
		}
		snippet, err := c.CreateSnippet(context.Background(), params)
		if err != nil {
			return fmt.Errorf("failed to create snippet: %w", err)
		}

		if !quiet {
			fmt.Printf("Created snippet %s\n", snippet.ID)
		}
		return nil
	},
}

var snippetsUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a snippet from a script file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		params, err := snippetParams()
		if err != nil {
			return err
		}
		snippet, err := c.UpdateSnippet(context.Background(), args[0], params)
		if err != nil {
			return fmt.Errorf("failed to update snippet: %w", err)
		}

		if !quiet {
			fmt.Printf("Updated snippet %s\n", snippet.ID)
		}
		return nil
	},
}

var snippetsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a snippet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		if err := c.DeleteSnippet(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to delete snippet: %w", err)
		}

		if !quiet {
			fmt.Printf("Deleted snippet %s\n", args[0])
		}
		return nil
	},
}

var snippetsExecuteCmd = &cobra.Command{
	Use:   "execute <id>",
	Short: "Activate a snippet and push it to live sessions",
	Long: `Activate a snippet and push it to every connected session.

The snippet becomes the active one, so sessions that connect later pick
it up through the pull path as well.

Examples:
  tracklight snippets execute <id>`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		clients, err := c.ExecuteSnippet(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("failed to execute snippet: %w", err)
		}

		if !quiet {
			fmt.Printf("Executed snippet %s, pushed to %d connected client(s)\n", args[0], clients)
		}
		return nil
	},
}

var snippetsDeactivateCmd = &cobra.Command{
	Use:   "deactivate <id>",
	Short: "Clear the active snippet slot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		if err := c.DeactivateSnippet(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to deactivate snippet: %w", err)
		}

		if !quiet {
			fmt.Printf("Deactivated snippet %s\n", args[0])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(snippetsCmd)
	snippetsCmd.AddCommand(snippetsListCmd)
	snippetsCmd.AddCommand(snippetsCreateCmd)
	snippetsCmd.AddCommand(snippetsUpdateCmd)
	snippetsCmd.AddCommand(snippetsDeleteCmd)
	snippetsCmd.AddCommand(snippetsExecuteCmd)
	snippetsCmd.AddCommand(snippetsDeactivateCmd)

	for _, cmd := range []*cobra.Command{snippetsCreateCmd, snippetsUpdateCmd} {
		cmd.Flags().StringVar(&snippetName, "name", "", "Snippet name")
		cmd.Flags().StringVar(&snippetFile, "file", "", "Path to the script file")
		_ = cmd.MarkFlagRequired("name")
		_ = cmd.MarkFlagRequired("file")
	}
}
