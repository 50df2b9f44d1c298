package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tracklight/internal/cli"
	"tracklight/internal/client"
)

var (
	ruleURL        string
	ruleCountries  []string
	rulePercentage int
	ruleExpression string
	ruleScriptID   string
	ruleInactive   bool
	listActiveOnly bool
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage targeting rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all targeting rules",
	Long: `List all targeting rules on the server.

Examples:
  tracklight rules list
  tracklight rules list --format json
  tracklight rules list --active-only`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		rules, err := c.ListRules(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list rules: %w", err)
		}

		if listActiveOnly {
			filtered := rules[:0]
			for _, r := range rules {
				if r.IsActive {
					filtered = append(filtered, r)
				}
			}
			rules = filtered
		}

		if quiet {
			return nil
		}
		if len(rules) == 0 {
			fmt.Println("No rules found")
			return nil
		}
		return cli.PrintRules(rules, cli.OutputFormat(format))
	},
}

func ruleParams() client.RuleParams {
	params := client.RuleParams{
		URL:        ruleURL,
		Countries:  ruleCountries,
		Percentage: rulePercentage,
	}
	if strings.TrimSpace(ruleExpression) != "" {
		params.Expression = &ruleExpression
	}
	if strings.TrimSpace(ruleScriptID) != "" {
		params.ScriptID = &ruleScriptID
	}
	if ruleInactive {
		active := false
		params.IsActive = &active
	}
	return params
}

var rulesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a targeting rule",
	Long: `Create a targeting rule.

Examples:
  tracklight rules create --url example.com/pricing --percentage 50
  tracklight rules create --url example.com --countries US,GB --percentage 100 --script-id <id>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		rule, err := c.CreateRule(context.Background(), ruleParams())
		if err != nil {
			return fmt.Errorf("failed to create rule: %w", err)
		}

		if !quiet {
			fmt.Printf("Created rule %s\n", rule.ID)
		}
		return nil
	},
}

var rulesUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a targeting rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		rule, err := c.UpdateRule(context.Background(), args[0], ruleParams())
		if err != nil {
			return fmt.Errorf("failed to update rule: %w", err)
		}

		if !quiet {
			fmt.Printf("Updated rule %s\n", rule.ID)
		}
		return nil
	},
}

var rulesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a targeting rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		if err := c.DeleteRule(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to delete rule: %w", err)
		}

		if !quiet {
			fmt.Printf("Deleted rule %s\n", args[0])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesCreateCmd)
	rulesCmd.AddCommand(rulesUpdateCmd)
	rulesCmd.AddCommand(rulesDeleteCmd)

	rulesListCmd.Flags().BoolVar(&listActiveOnly, "active-only", false, "Show only active rules")

	for _, cmd := range []*cobra.Command{rulesCreateCmd, rulesUpdateCmd} {
		cmd.Flags().StringVar(&ruleURL, "url", "", "URL pattern the rule matches (substring)")
		cmd.Flags().StringSliceVar(&ruleCountries, "countries", nil, "Country codes the rule targets (empty = all)")
		cmd.Flags().IntVar(&rulePercentage, "percentage", 100, "Admission percentage (0-100)")
		cmd.Flags().StringVar(&ruleExpression, "expression", "", "Optional JSON Logic expression")
		cmd.Flags().StringVar(&ruleScriptID, "script-id", "", "Snippet the rule delivers")
		cmd.Flags().BoolVar(&ruleInactive, "inactive", false, "Create the rule disabled")
		_ = cmd.MarkFlagRequired("url")
	}
}
