package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"bolus/internal/app"
	"bolus/internal/domain"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a glycemic control report",
	Long: `Print the report projection for a date range: summary statistics, the mean
glucose of the last seven days and the most recent entries.

Examples:
  bolus report
  bolus report --from 2026-03-01 --to 2026-03-31 --json`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().String("from", "", "first day, inclusive (yyyy-mm-dd)")
	reportCmd.Flags().String("to", "", "last day, inclusive (yyyy-mm-dd)")
	reportCmd.Flags().Bool("json", false, "output as JSON")
}

func runReport(cmd *cobra.Command, _ []string) error {
	from, err := dateFlag(cmd, "from")
	if err != nil {
		return err
	}
	to, err := dateFlag(cmd, "to")
	if err != nil {
		return err
	}
	jsonOutput, _ := cmd.Flags().GetBool("json")

	rt, key, err := openForUser(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.close() }()

	r, err := rt.reports.Build(cmd.Context(), key, from, to, time.Now())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	printReport(out, r)
	return nil
}

func dateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", v, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: --%s: %w", domain.ErrInvalidInput, name, err)
	}
	return t, nil
}

func printReport(w io.Writer, r app.Report) {
	_, _ = fmt.Fprintln(w, "Glycemic control report")
	_, _ = fmt.Fprintf(w, "Generated: %s\n", r.GeneratedAt.Format(domain.TimestampLayout))
	_, _ = fmt.Fprintf(w, "Parameters: target %g mg/dL | sensitivity %g\n", r.Target, r.Sensitivity)
	_, _ = fmt.Fprintf(w, "Period: %s\n", r.RangeLabel)
	_, _ = fmt.Fprintf(w, "Mean glucose (last %d days): %.1f mg/dL\n", app.WeeklyWindowDays, r.WeeklyMean)
	if r.Summary.HasData() {
		_, _ = fmt.Fprintf(w, "Period mean: %.1f mg/dL over %d entries, %d U total\n",
			*r.Summary.MeanGlucose, r.Summary.Count, r.Summary.TotalDose)
	}
	_, _ = fmt.Fprintln(w)
	printEntries(w, r.Recent)
}
