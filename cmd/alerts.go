package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/onyx-report/onyx-cli/internal/monitoring"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Portfolio condition alerts",
}

var alertsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one alert check across all organizations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("alerts"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		checker := monitoring.NewChecker(
			monitoring.NewCollector(st),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)
		res, err := checker.Check(ctx, dryRun || cfg.Monitoring.WebhookURL == "")
		if err != nil {
			return err
		}

		formatCheckResult(os.Stdout, res)
		return nil
	},
}

func init() {
	alertsCheckCmd.Flags().Bool("dry-run", false, "evaluate alerts without sending them")
	alertsCmd.AddCommand(alertsCheckCmd)
	rootCmd.AddCommand(alertsCmd)
}

// formatCheckResult writes a snapshot summary and the triggered alerts to w.
func formatCheckResult(out io.Writer, res *monitoring.CheckResult) {
	p := message.NewPrinter(language.English)
	snap := res.Snapshot

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Buildings reported:\t%d\n", snap.BuildingsReported)
	_, _ = fmt.Fprintf(w, "Critical buildings:\t%d\n", len(snap.CriticalBuildings))
	_, _ = p.Fprintf(w, "Immediate repairs:\t$%.2f\n", snap.ImmediateRepairTotal)
	_, _ = fmt.Fprintf(w, "Draft reports:\t%d\n", snap.DraftReports)
	_, _ = fmt.Fprintf(w, "Stale drafts:\t%d\n", snap.StaleDrafts)
	_ = w.Flush()

	if len(res.Alerts) == 0 {
		_, _ = fmt.Fprintln(out, "\nNo alerts triggered.")
		return
	}

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TYPE\tSEVERITY\tMESSAGE")
	for _, a := range res.Alerts {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", a.Type, a.Severity, a.Message)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "\n%d of %d alerts sent.\n", res.Sent, len(res.Alerts))
}
