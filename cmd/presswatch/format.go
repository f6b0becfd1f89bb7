package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pevans/presswatch/dataset"
	"github.com/pevans/presswatch/discovery"
	"github.com/pevans/presswatch/sources"
)

// formatSyncResult prints one row per source. Sources that ran cleanly but
// found nothing are marked distinctly from failed ones.
func formatSyncResult(out io.Writer, result *discovery.SyncResult, dryRun bool) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "COMPANY\tOUTCOME\tFOUND\tADDED\tPAGES\tSTRATEGY\tDURATION")
	_, _ = fmt.Fprintln(w, "-------\t-------\t-----\t-----\t-----\t--------\t--------")

	for _, s := range result.Sources {
		strategy := s.Strategy
		if strategy == "" {
			strategy = "-"
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			truncate(s.Company, 30),
			outcome(s),
			s.Found,
			s.Added,
			s.Pages,
			strategy,
			s.Duration.Round(time.Second),
		)
	}
	_ = w.Flush()

	found, added, failed := result.Totals()
	_, _ = fmt.Fprintln(out)
	if dryRun {
		_, _ = fmt.Fprintf(out, "Dry run: %d found, nothing written, %d failed\n", found, failed)
	} else {
		_, _ = fmt.Fprintf(out, "Total: %d found, %d added, %d failed\n", found, added, failed)
	}

	for _, s := range result.Sources {
		if s.Err != nil {
			_, _ = fmt.Fprintf(out, "  %s: %v\n", s.Company, s.Err)
		}
	}
}

func outcome(s discovery.SourceResult) string {
	switch {
	case s.Err != nil:
		return "error"
	case s.Found == 0:
		return "empty"
	case s.Rendered:
		return "ok (rendered)"
	}
	return "ok"
}

// formatSources prints the catalog with each company's last run.
func formatSources(out io.Writer, catalog []sources.Source, status map[string]sources.Status) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "COMPANY\tENABLED\tLAST_RUN\tITEMS\tADDED\tERRORS\tURL")
	_, _ = fmt.Fprintln(w, "-------\t-------\t--------\t-----\t-----\t------\t---")

	for _, s := range catalog {
		lastRun, items, added, errCount := "never", "-", "-", "-"
		if st, ok := lookupStatus(status, s.Company); ok {
			if st.LastRunAt != nil {
				lastRun = st.LastRunAt.Local().Format("2006-01-02 15:04")
			}
			items = fmt.Sprint(st.LastItemCount)
			added = fmt.Sprint(st.LastAdded)
			errCount = fmt.Sprint(st.ErrorCount)
		}

		_, _ = fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%s\t%s\t%s\n",
			truncate(s.Company, 30),
			s.IsEnabled(),
			lastRun,
			items,
			added,
			errCount,
			truncate(s.URL, 60),
		)
	}
	_ = w.Flush()
}

// lookupStatus matches companies case-insensitively, as the status store
// does.
func lookupStatus(status map[string]sources.Status, company string) (sources.Status, bool) {
	if st, ok := status[company]; ok {
		return st, true
	}
	for name, st := range status {
		if strings.EqualFold(name, company) {
			return st, true
		}
	}
	return sources.Status{}, false
}

// formatReleasesTable prints dataset rows.
func formatReleasesTable(out io.Writer, records []dataset.MasterRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATE\tCOMPANY\tTITLE\tLINK")
	_, _ = fmt.Fprintln(w, "----\t-------\t-----\t----")

	for _, r := range records {
		date := r.Date
		if date == "" {
			date = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			date,
			truncate(r.Company, 20),
			truncate(r.Title, 70),
			r.Link,
		)
	}
	_ = w.Flush()
}

// formatReleasesJSON prints dataset rows as a JSON document.
func formatReleasesJSON(out io.Writer, records []dataset.MasterRecord) error {
	if records == nil {
		records = []dataset.MasterRecord{}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"releases": records,
		"total":    len(records),
	})
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
