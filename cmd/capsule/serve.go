package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kbukum/capsule/config"
	"github.com/kbukum/capsule/metastore"
	"github.com/kbukum/capsule/observability"
	"github.com/kbukum/capsule/statusapi"
)

func newServeCommand(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the status of recorded executions over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := g.load(config.WithFlags(cmd.Flags(), map[string]string{"status.addr": "addr"}))
			if err != nil {
				return err
			}
			store, err := metastore.New(cfg.Metastore)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			scratch := observability.DirectoryCheck("scratch_root", cfg.Execution.ScratchRoot)
			srv := statusapi.New(cfg.Status, cfg.Name, store, log, scratch)
			if err := srv.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			return srv.Stop(context.WithoutCancel(ctx))
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides status.addr)")
	return cmd
}
