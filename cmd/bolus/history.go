package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"bolus/internal/adapter/csvfile"
	"bolus/internal/app"
	"bolus/internal/domain"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List the user's entries in chronological order",
	RunE:  runHistory,
}

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete entries by timestamp",
	Long: `Delete the entries recorded at the given timestamps. A timestamp shared by
more than one entry is refused as ambiguous and nothing is removed.

Example:
  bolus delete --at "01/03/2026 08:15" --at "02/03/2026 12:30"`,
	RunE: runDelete,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the user's history as a CSV backup",
	RunE:  runExport,
}

var restoreCmd = &cobra.Command{
	Use:   "restore <file>",
	Short: "Replace the user's history with a CSV backup",
	Long: `Replace the user's history with the valid rows of a CSV backup. Entries not in
the backup are gone afterwards. Malformed rows are skipped and listed. A backup
with no valid rows leaves the history untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error { return runRestore(cmd, args[0], false) },
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Add the rows of a CSV backup that are not already stored",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return runRestore(cmd, args[0], true) },
}

func init() {
	rootCmd.AddCommand(historyCmd, deleteCmd, exportCmd, restoreCmd, importCmd)
	historyCmd.Flags().Int("limit", 0, "show only the last N entries")
	historyCmd.Flags().Bool("json", false, "output as JSON")
	deleteCmd.Flags().StringArray("at", nil, "timestamp of an entry to delete (dd/mm/yyyy hh:mm)")
	_ = deleteCmd.MarkFlagRequired("at")
	exportCmd.Flags().StringP("out", "o", "", "output file (default stdout)")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	rt, key, err := openForUser(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.close() }()

	entries, err := rt.history.List(cmd.Context(), key)
	if err != nil {
		return err
	}
	if limit > 0 {
		entries = domain.Tail(entries, limit)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	printEntries(out, entries)
	return nil
}

func printEntries(w io.Writer, entries []domain.Entry) {
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "No entries.")
		return
	}
	_, _ = fmt.Fprintf(w, "%-17s %9s %7s %4s %5s\n", "Date", "Glucose", "Carbs", "ICR", "Dose")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%-17s %9g %7g %4d %5d\n",
			e.Timestamp.Format(domain.TimestampLayout), e.Glucose, e.Carbs, e.CarbRatio, e.Dose)
	}
}

func runDelete(cmd *cobra.Command, _ []string) error {
	values, _ := cmd.Flags().GetStringArray("at")
	timestamps := make([]time.Time, 0, len(values))
	for _, v := range values {
		ts, err := domain.ParseTimestamp(v)
		if err != nil {
			return err
		}
		timestamps = append(timestamps, ts)
	}

	rt, key, err := openForUser(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.close() }()

	removed, err := rt.history.Delete(cmd.Context(), key, domain.ByTimestamp(timestamps...))
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries.\n", removed)
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("out")

	rt, key, err := openForUser(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.close() }()

	entries, err := rt.history.Export(cmd.Context(), key)
	if err != nil {
		return err
	}
	if path == "" {
		return csvfile.WriteEntries(cmd.OutOrStdout(), entries)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := csvfile.WriteEntries(f, entries); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d entries to %s\n", len(entries), path)
	return nil
}

func runRestore(cmd *cobra.Command, path string, additive bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	rows, err := csvfile.ReadRows(f)
	if err != nil {
		return err
	}

	rt, key, err := openForUser(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.close() }()

	var report app.RestoreReport
	if additive {
		report, err = rt.history.ImportBackup(cmd.Context(), key, rows)
	} else {
		report, err = rt.history.MergeBackup(cmd.Context(), key, rows)
	}
	printRestore(cmd.OutOrStdout(), report)
	return err
}

func printRestore(w io.Writer, r app.RestoreReport) {
	_, _ = fmt.Fprintf(w, "Restored %d of %d rows.\n", r.Restored, r.Total)
	for _, s := range r.Skipped {
		_, _ = fmt.Fprintf(w, "  skipped %s\n", s.Reason)
	}
}

func openForUser(cmd *cobra.Command) (*runtime, string, error) {
	key, err := userKey(cmd)
	if err != nil {
		return nil, "", err
	}
	rt, err := openRuntime(cmd)
	if err != nil {
		return nil, "", err
	}
	return rt, key, nil
}
