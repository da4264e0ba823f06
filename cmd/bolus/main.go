// Command bolus computes insulin bolus doses and keeps each user's glycemic
// history. It runs as an HTTP server or as one-shot CLI commands.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bolus",
	Short: "Insulin bolus calculator and glycemic record keeper",
	Long: `Bolus computes a rounded insulin dose from a glucose reading, the carbohydrates
of a meal and the carb ratio, and keeps an append-only per-user history of the
readings and doses for trend review and reporting.

Settings come from built-in defaults, then the --config ini file, then the
environment (TARGET_GLUCOSE, SENSITIVITY_FACTOR, STORE_DRIVER, DATA_DIR,
DATABASE_URL, ADDR, WEB_DIR, LOG_LEVEL, OIDC_*).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to an ini config file")
	rootCmd.PersistentFlags().StringP("user", "u", "local", "user whose history CLI commands act on")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
