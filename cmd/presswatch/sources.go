package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pevans/presswatch/sources"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Inspect the newsroom catalog",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog sources with their last run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		catalog, err := sources.LoadCatalog(cfg.Sources.File)
		if err != nil {
			return err
		}

		st, err := sources.NewStatusStore(cfg.Status.Path)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, err := st.ListStatus(ctx)
		if err != nil {
			return err
		}

		formatSources(os.Stdout, catalog.Sources, status)
		return nil
	},
}

func init() {
	sourcesCmd.AddCommand(sourcesListCmd)
	rootCmd.AddCommand(sourcesCmd)
}
