package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/rafaeljc/tagflow/internal/app"
	"github.com/rafaeljc/tagflow/internal/config"
	"github.com/rafaeljc/tagflow/internal/ruleengine"
)

func rulesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect the rule catalog",
	}
	cmd.AddCommand(rulesListCmd(opts))
	cmd.AddCommand(rulesValidateCmd())
	cmd.AddCommand(rulesExportCmd())
	return cmd
}

func rulesListCmd(opts *options) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transition rules in priority order",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := app.LoadCatalog(config.EngineConfig{CatalogFile: file})
			if err != nil {
				return err
			}
			rules := catalog.Rules()
			if opts.json {
				return printJSON(cmd.OutOrStdout(), rules)
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"ID", "Group", "From", "To", "Conditions", "Override"})
			for _, r := range rules {
				tw.AppendRow(table.Row{r.ID, r.Group, joinTags(r.From), tagLabel(r.To), joinConditions(r.Conditions), r.ManualOverrideAllowed})
			}
			tw.AppendFooter(table.Row{"", "", "", "", "rules", len(rules)})
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "catalog JSON file (default: built-in catalog)")
	return cmd
}

func rulesValidateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a catalog file without starting any service",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := app.LoadCatalog(config.EngineConfig{CatalogFile: file})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "catalog ok: %d rules, terminal tags: %s\n",
				len(catalog.Rules()), joinTags(catalog.TerminalTags()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "catalog JSON file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func rulesExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print the built-in catalog as JSON, ready to edit and load with TAGFLOW_ENGINE_CATALOG_FILE",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd.OutOrStdout(), ruleengine.DefaultCatalog().Spec())
		},
	}
}

func tagLabel(t ruleengine.StatusTag) string {
	return fmt.Sprintf("%s %s", t, t.Name())
}

func joinTags(tags []ruleengine.StatusTag) string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = string(t)
	}
	return strings.Join(out, ", ")
}

func joinConditions(conds []ruleengine.Condition) string {
	out := make([]string, len(conds))
	for i, c := range conds {
		out[i] = c.String()
	}
	return strings.Join(out, "\n")
}
