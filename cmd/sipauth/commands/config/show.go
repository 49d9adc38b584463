package config

import (
	"fmt"
	"sort"

	"github.com/marmos91/sipauth/internal/cli/output"
	"github.com/marmos91/sipauth/pkg/config"
	"github.com/marmos91/sipauth/pkg/hss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the effective sipauth configuration, with defaults and
environment overrides applied. Secrets are masked.

Examples:
  # Show as YAML
  sipauth config show

  # Show as JSON
  sipauth config show --output json

  # One row per key
  sipauth config show --output table`,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json|table)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(configPath(cmd))
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}

	masked := maskSecrets(cfg)
	out := cmd.OutOrStdout()
	switch format {
	case output.FormatJSON:
		return output.PrintJSON(out, masked)
	case output.FormatTable:
		table, err := flatten(masked)
		if err != nil {
			return err
		}
		return output.PrintTable(out, table)
	default:
		return output.PrintYAML(out, masked)
	}
}

const mask = "********"

// maskSecrets returns a copy of cfg safe to print.
func maskSecrets(cfg *config.Config) *config.Config {
	c := *cfg
	if c.API.JWT.Secret != "" {
		c.API.JWT.Secret = mask
	}
	if c.VectorStore.SQL.Postgres.Password != "" {
		c.VectorStore.SQL.Postgres.Password = mask
	}
	if len(c.HSS.Subscribers) > 0 {
		subs := make([]hss.Subscriber, 0, len(c.HSS.Subscribers))
		for _, s := range c.HSS.Subscribers {
			if s.Password != "" {
				s.Password = mask
			}
			if s.HA1 != "" {
				s.HA1 = mask
			}
			subs = append(subs, s)
		}
		c.HSS.Subscribers = subs
	}
	return &c
}

// flatten renders cfg as dotted keys, one row each.
func flatten(cfg *config.Config) (*output.Table, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("failed to flatten config: %w", err)
	}

	rows := map[string]string{}
	walk("", tree, rows)

	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := output.NewTable("KEY", "VALUE")
	for _, k := range keys {
		t.AddRow(k, rows[k])
	}
	return t, nil
}

func walk(prefix string, v any, rows map[string]string) {
	switch node := v.(type) {
	case map[string]any:
		for k, child := range node {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			walk(key, child, rows)
		}
	case []any:
		for i, child := range node {
			walk(fmt.Sprintf("%s[%d]", prefix, i), child, rows)
		}
	default:
		rows[prefix] = fmt.Sprint(node)
	}
}
