package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/onyx-report/onyx-cli/internal/report"
)

var fciCmd = &cobra.Command{
	Use:   "fci <assessment-id>",
	Short: "Compute the FCI of an assessment without saving a report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		svc := report.NewService(st, newAggregator(), cfg.Reports.Concurrency)
		calc, err := svc.Calculate(ctx, "", args[0])
		if err != nil {
			return eris.Wrap(err, "fci")
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(calc)
		}
		formatCalculation(os.Stdout, calc)
		return nil
	},
}

func init() {
	fciCmd.Flags().Bool("json", false, "print the full result as JSON")
	rootCmd.AddCommand(fciCmd)
}

// formatCalculation writes an FCI breakdown to w.
func formatCalculation(out io.Writer, calc *report.Calculation) {
	p := message.NewPrinter(language.English)
	res := calc.Result

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Building:\t%s\n", calc.Building.Name)
	_, _ = fmt.Fprintf(w, "Assessment:\t%s (%s)\n", calc.Assessment.ID, calc.Assessment.Status)
	_, _ = p.Fprintf(w, "Replacement value:\t$%.2f\n", res.ReplacementValue)
	_, _ = p.Fprintf(w, "Total repair cost:\t$%.2f\n", res.TotalRepairCost)
	_, _ = p.Fprintf(w, "  Immediate:\t$%.2f\n", res.ImmediateRepairCost)
	_, _ = p.Fprintf(w, "  Short-term:\t$%.2f\n", res.ShortTermRepairCost)
	_, _ = p.Fprintf(w, "  Long-term:\t$%.2f\n", res.LongTermRepairCost)
	if res.UnallocatedRepairCost > 0 {
		_, _ = p.Fprintf(w, "  Unallocated:\t$%.2f\n", res.UnallocatedRepairCost)
	}
	_, _ = fmt.Fprintf(w, "FCI:\t%.4f\n", res.FCIScore)
	_, _ = fmt.Fprintf(w, "Band:\t%s\n", res.Band)
	_, _ = fmt.Fprintf(w, "Elements:\t%d\n", len(res.Elements))
	_ = w.Flush()

	if len(res.Groups) > 0 {
		_, _ = fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "MAJOR GROUP\tELEMENTS\tREPAIR COST")
		for _, g := range res.Groups {
			_, _ = p.Fprintf(w, "%s\t%d\t$%.2f\n", g.MajorGroup, g.Elements, g.Total)
		}
		_ = w.Flush()
	}

	for _, warn := range res.Warnings {
		_, _ = fmt.Fprintf(out, "warning: %s\n", warn)
	}
}
