// Command static-server serves a directory of static files over HTTP/1.1.
//
//	static-server [port] [-z] [-v] [flags]
//
// The supervisor listens once and re-executes itself as worker processes
// that share the socket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/searchktools/static-server/app"
	"github.com/searchktools/static-server/config"
	"github.com/searchktools/static-server/core"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Default()

	root := &cobra.Command{
		Use:          "static-server [port]",
		Short:        "Serve static files with a pool of prefork workers",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ApplyEnv(cmd.Flags(), config.EnvPrefix); err != nil {
				return err
			}
			if err := cfg.ApplyArgs(args); err != nil {
				return err
			}
			return cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.New(cfg).Run(ctx)
		},
	}
	cfg.BindFlags(root.PersistentFlags())

	root.AddCommand(&cobra.Command{
		Use:    "worker",
		Short:  "Serve an inherited listener (started by the supervisor)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(os.Getenv(core.WorkerIDEnv))
			if err != nil {
				return fmt.Errorf("%s: %w", core.WorkerIDEnv, err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.New(cfg).RunWorker(ctx, id)
		},
	})

	root.SetContext(context.Background())
	return root
}
