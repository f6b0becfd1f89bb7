package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pevans/presswatch/api"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the master dataset as read-only JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := openDataset()
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck

		addr := serveAddr
		if addr == "" {
			addr = cfg.API.Addr
		}

		return api.NewServer(store).ListenAndServe(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}
