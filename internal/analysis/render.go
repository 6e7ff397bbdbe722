package analysis

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// Render writes the report as flat aligned tables. The layout is one
// row per mechanism followed by one row per baseline contrast; no
// nesting, so the output greps and diffs cleanly.
func Render(w io.Writer, r *Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "baseline: %s\n", r.Baseline)
	fmt.Fprintf(tw, "records: %d total, %d errored, %d below confidence floor\n\n",
		r.TotalRecords, r.DroppedErrors, r.DroppedLowConfidence)

	fmt.Fprintln(tw, "MECHANISM\tTRIALS\tERR%\tPREC\tRECALL\tF1\tFPR\tASR\tMED ms\tP95 ms\tMEAN TOK")
	for _, m := range r.Mechanisms {
		fmt.Fprintf(tw, "%s\t%d\t%.1f\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t%.1f\t%.1f\t%.1f\n",
			m.Name, m.Trials, m.ErrorRate*100,
			m.Confusion.Precision, m.Confusion.Recall, m.Confusion.F1,
			m.Confusion.FalsePositiveRate, m.Confusion.AttackSuccessRate,
			m.Latency.Median, m.Latency.P95, m.Tokens.MeanTotal)
	}

	if len(r.Comparisons) > 0 {
		fmt.Fprintln(tw, "\nVS BASELINE\tDMED ms\tDMED %\tTOK TAX\tTOK %\tU\tp\tp adj\tsig05\tsig01\tCLIFF D\tEFFECT")
		for _, c := range r.Comparisons {
			fmt.Fprintf(tw, "%s\t%+.1f\t%+.1f\t%+.1f\t%+.1f\t%.1f\t%.4f\t%.4f\t%s\t%s\t%+.3f\t%s\n",
				c.Mechanism, c.LatencyDeltaMs, c.LatencyDeltaPct,
				c.TokenTax, c.TokenTaxPct,
				c.UStatistic, c.PValue, c.PAdjusted,
				sigMark(c.SignificantAt05), sigMark(c.SignificantAt01),
				c.CliffsDelta, c.EffectMagnitude)
		}
	}

	return tw.Flush()
}

func sigMark(significant bool) string {
	if significant {
		return "yes"
	}
	return "no"
}
