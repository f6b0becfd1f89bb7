package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/pevans/presswatch/dataset"
	"github.com/pevans/presswatch/dates"
)

var releasesCmd = &cobra.Command{
	Use:   "releases",
	Short: "Query the master dataset",
}

var releasesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collected releases",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		company, _ := cmd.Flags().GetString("company")
		since, _ := cmd.Flags().GetString("since")
		limit, _ := cmd.Flags().GetInt("limit")
		format, _ := cmd.Flags().GetString("format")

		filter := dataset.Filter{Company: company, Limit: limit}
		if since != "" {
			t, err := time.Parse(dates.Layout, since)
			if err != nil {
				return eris.Errorf("--since must be YYYY-MM-DD, got %q", since)
			}
			filter.Since = &t
		}
		if format != "table" && format != "json" {
			return eris.Errorf("--format must be table or json, got %q", format)
		}

		store, err := openDataset()
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck

		records, err := store.List(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "releases list")
		}

		if format == "json" {
			return formatReleasesJSON(os.Stdout, records)
		}
		if len(records) == 0 {
			fmt.Fprintln(os.Stderr, "No releases found.")
			return nil
		}
		formatReleasesTable(os.Stdout, records)
		return nil
	},
}

var releasesImportCmd = &cobra.Command{
	Use:   "import <csv-path>",
	Short: "Copy a CSV master dataset into the SQLite backend",
	Long: "Reads an existing press_releases_master.csv, keeping ids, capture times and " +
		"extra columns, and inserts the rows missing from the configured SQLite dataset.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cfg.Dataset.Backend != dataset.BackendSQLite {
			return eris.New("releases import needs dataset.backend set to sqlite")
		}
		policy, err := cfg.KeyPolicy()
		if err != nil {
			return err
		}

		if _, err := os.Stat(args[0]); err != nil {
			return eris.Wrap(err, "releases import")
		}
		src, err := dataset.OpenCSV(args[0], policy)
		if err != nil {
			return err
		}
		defer src.Close() //nolint:errcheck

		records, err := src.List(ctx, dataset.Filter{Sort: "date"})
		if err != nil {
			return err
		}

		dst, err := dataset.OpenSQLite(cfg.Dataset.Path, policy)
		if err != nil {
			return err
		}
		defer dst.Close() //nolint:errcheck

		imported, err := dst.Import(ctx, records)
		if err != nil {
			return err
		}

		fmt.Printf("Imported %d of %d releases into %s\n", imported, len(records), cfg.Dataset.Path)
		return nil
	},
}

// openDataset opens the configured master dataset.
func openDataset() (dataset.Store, error) {
	policy, err := cfg.KeyPolicy()
	if err != nil {
		return nil, err
	}
	return dataset.Open(cfg.Dataset.Backend, cfg.Dataset.Path, policy)
}

func init() {
	releasesListCmd.Flags().String("company", "", "filter by company")
	releasesListCmd.Flags().String("since", "", "only releases on or after this date (YYYY-MM-DD)")
	releasesListCmd.Flags().Int("limit", 50, "max number of releases to display (0 for all)")
	releasesListCmd.Flags().String("format", "table", "output format (table or json)")

	releasesCmd.AddCommand(releasesListCmd)
	releasesCmd.AddCommand(releasesImportCmd)
	rootCmd.AddCommand(releasesCmd)
}
