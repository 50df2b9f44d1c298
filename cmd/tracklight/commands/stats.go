package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"tracklight/internal/cli"
)

var statsURL string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show visit statistics",
	Long: `Show per-domain visit rollups, or recent visitors of one URL.

Examples:
  tracklight stats
  tracklight stats --url example.com/pricing`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		ctx := context.Background()

		if statsURL != "" {
			visitors, err := c.UserActivities(ctx, statsURL)
			if err != nil {
				return fmt.Errorf("failed to load visitor activity: %w", err)
			}
			if quiet {
				return nil
			}
			if len(visitors) == 0 {
				fmt.Println("No visitors found")
				return nil
			}
			for _, v := range visitors {
				state := "inactive"
				if v.Active {
					state = "active"
				}
				fmt.Printf("%-40s %-8s %-8s last seen %s\n", v.IP, v.Country, state, v.LastActiveAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		}

		domains, err := c.DashboardStats(ctx)
		if err != nil {
			return fmt.Errorf("failed to load dashboard stats: %w", err)
		}
		if quiet {
			return nil
		}
		if len(domains) == 0 {
			fmt.Println("No visits recorded")
			return nil
		}
		return cli.PrintDomainStats(domains, cli.OutputFormat(format))
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringVar(&statsURL, "url", "", "Show recent visitors of this URL instead of the rollup")
}
