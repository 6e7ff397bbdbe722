package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ahrav/guardtax/infrastructure/store"
	"github.com/ahrav/guardtax/internal/analysis"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Compute comparative statistics from persisted trial records",
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().String("results", "results", "results directory to analyze")
	analyzeCmd.Flags().Float64("min-confidence", 0, "drop verdicts below this confidence")
	analyzeCmd.Flags().String("json", "", "also write the report as JSON to this path")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	dir, _ := cmd.Flags().GetString("results")
	minConfidence, _ := cmd.Flags().GetFloat64("min-confidence")
	jsonPath, _ := cmd.Flags().GetString("json")

	records, err := store.ReadAllRecords(dir)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no trial records under %s", dir)
	}

	ds := analysis.Load(records, minConfidence)
	report, err := analysis.BuildReport(ds, time.Now().UTC())
	if err != nil {
		return err
	}

	if err := analysis.Render(cmd.OutOrStdout(), report); err != nil {
		return err
	}

	if jsonPath != "" {
		data, err := report.JSON()
		if err != nil {
			return err
		}
		if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nreport written to %s\n", jsonPath)
	}
	return nil
}
