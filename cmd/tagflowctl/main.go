// Command tagflowctl is the operator CLI: it inspects the rule catalog and
// evaluates, transitions and sweeps customers against the live database.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/tagflow/internal/app"
	"github.com/rafaeljc/tagflow/internal/config"
	"github.com/rafaeljc/tagflow/internal/logger"
)

// options are the persistent flags shared by every command.
type options struct {
	json bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "tagflowctl",
		Short: "Operate the tagflow lifecycle engine",
		Long: `tagflowctl manages learner status tags.

Rule commands work offline against the built-in catalog or a catalog file.
Every other command reads TAGFLOW_* environment variables and connects to
Postgres and Redis the same way the services do.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "output JSON")

	root.AddCommand(rulesCmd(opts))
	root.AddCommand(evaluateCmd(opts))
	root.AddCommand(applyCmd(opts))
	root.AddCommand(historyCmd(opts))
	root.AddCommand(reviewsCmd(opts))
	root.AddCommand(sweepCmd(opts))
	return root
}

// withRuntime loads the configuration, connects, and hands fn the runtime.
// CLI logs go to stderr so stdout stays parseable.
func withRuntime(cmd *cobra.Command, fn func(context.Context, *app.Runtime) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.NewWithWriter(&cfg.App, cmd.ErrOrStderr())
	ctx := logger.WithContext(cmd.Context(), log)

	rt, err := app.Bootstrap(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Error("failed to close runtime", slog.Any("error", err))
		}
	}()

	return fn(ctx, rt)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
