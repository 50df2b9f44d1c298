package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"tracklight/internal/client"
	"tracklight/internal/store"
)

// OutputFormat specifies the output format for CLI commands
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// PrintRules outputs targeting rules in the specified format
func PrintRules(rules []store.Rule, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(map[string]any{"rules": rules})
	case FormatYAML:
		return printYAML(rules)
	case FormatTable:
		return printRuleTable(rules)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintSnippets outputs snippets in the specified format
func PrintSnippets(snippets []client.Snippet, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(map[string]any{"snippets": snippets})
	case FormatYAML:
		return printYAML(snippets)
	case FormatTable:
		return printSnippetTable(snippets)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintDomainStats outputs dashboard rollups in the specified format
func PrintDomainStats(domains []store.DomainStats, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(map[string]any{"domains": domains})
	case FormatYAML:
		return printYAML(domains)
	case FormatTable:
		return printStatsTable(domains)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func printJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func printYAML(data any) error {
	encoder := yaml.NewEncoder(os.Stdout)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(data)
}

func printRuleTable(rules []store.Rule) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "URL Pattern", "Countries", "Percentage", "Active", "Updated At")

	for _, rule := range rules {
		countries := "all"
		if len(rule.Countries) > 0 {
			countries = strings.Join(rule.Countries, ",")
		}
		pattern := rule.URLPattern
		if len(pattern) > 40 {
			pattern = pattern[:37] + "..."
		}
		table.Append(
			rule.ID,
			pattern,
			countries,
			fmt.Sprintf("%d%%", rule.Percentage),
			fmt.Sprintf("%t", rule.IsActive),
			rule.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}

	return table.Render()
}

func printSnippetTable(snippets []client.Snippet) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Name", "Size", "Active", "Updated At")

	for _, s := range snippets {
		table.Append(
			s.ID,
			s.Name,
			fmt.Sprintf("%dB", len(s.Script)),
			fmt.Sprintf("%t", s.IsActive),
			s.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}

	return table.Render()
}

func printStatsTable(domains []store.DomainStats) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Domain", "Visits", "Unique", "Active Now", "Last Visit")

	for _, d := range domains {
		table.Append(
			d.Domain,
			fmt.Sprintf("%d", d.Visits),
			fmt.Sprintf("%d", d.UniqueVisitors),
			fmt.Sprintf("%d", d.ActiveNow),
			d.LastVisitAt.Format("2006-01-02 15:04"),
		)
	}

	return table.Render()
}
