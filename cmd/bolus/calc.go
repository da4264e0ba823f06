package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"bolus/internal/app"
	"bolus/internal/domain"
)

var calcCmd = &cobra.Command{
	Use:   "calc",
	Short: "Compute a bolus dose",
	Long: `Compute a bolus dose from a glucose reading, the meal's carbohydrates and the
carb ratio. With --save the reading and dose are appended to the user's history.

Examples:
  bolus calc --glucose 180 --carbs 60 --ratio 10
  bolus calc -g 150 -c 45 -r 10 --save --at "01/03/2026 08:15"`,
	RunE: runCalc,
}

func init() {
	rootCmd.AddCommand(calcCmd)
	calcCmd.Flags().Float64P("glucose", "g", 0, "blood glucose in mg/dL")
	calcCmd.Flags().Float64P("carbs", "c", 0, "carbohydrates in grams")
	calcCmd.Flags().IntP("ratio", "r", 0, "carb ratio (grams per unit)")
	calcCmd.Flags().String("at", "", "timestamp to record instead of now (dd/mm/yyyy hh:mm)")
	calcCmd.Flags().Bool("save", false, "append the result to the history")
	calcCmd.Flags().Bool("json", false, "output as JSON")
	_ = calcCmd.MarkFlagRequired("glucose")
	_ = calcCmd.MarkFlagRequired("ratio")
}

func runCalc(cmd *cobra.Command, _ []string) error {
	glucose, _ := cmd.Flags().GetFloat64("glucose")
	carbs, _ := cmd.Flags().GetFloat64("carbs")
	ratio, _ := cmd.Flags().GetInt("ratio")
	at, _ := cmd.Flags().GetString("at")
	save, _ := cmd.Flags().GetBool("save")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	mode := domain.AutoTimestamp()
	if at != "" {
		ts, err := domain.ParseTimestamp(at)
		if err != nil {
			return err
		}
		mode = domain.EditingTimestamp(ts)
	}

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.close() }()

	var c app.Calculation
	if save {
		key, err := userKey(cmd)
		if err != nil {
			return err
		}
		c, err = rt.dose.CalculateAndRecord(cmd.Context(), key, glucose, carbs, ratio, mode)
		if err != nil {
			return err
		}
	} else if c, err = rt.dose.Calculate(glucose, carbs, ratio, mode); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	}
	printCalculation(out, c)
	return nil
}

func printCalculation(w io.Writer, c app.Calculation) {
	b := c.Breakdown
	_, _ = fmt.Fprintf(w, "Correction: %.2f U\n", b.CorrectionUnits)
	_, _ = fmt.Fprintf(w, "Meal:       %.2f U\n", b.MealUnits)
	_, _ = fmt.Fprintf(w, "Total:      %.2f U\n", b.RawTotal)
	if !b.Administrable() {
		_, _ = fmt.Fprintln(w, "HYPOGLYCEMIA: glucose below 70 mg/dL. Treat with fast-acting carbohydrate; do not inject insulin.")
	} else {
		_, _ = fmt.Fprintf(w, "DOSE:       %d U\n", b.RoundedDose)
	}
	if c.Saved {
		_, _ = fmt.Fprintf(w, "Saved at %s\n", c.Entry.Timestamp.Format(domain.TimestampLayout))
	}
}
