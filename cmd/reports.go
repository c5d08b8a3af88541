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

	"github.com/onyx-report/onyx-cli/internal/model"
	"github.com/onyx-report/onyx-cli/internal/report"
	"github.com/onyx-report/onyx-cli/internal/store"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Generate, inspect and export FCI reports",
}

// -- reports list --

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter, err := reportFilterFlags(cmd)
		if err != nil {
			return err
		}
		reports, err := st.ListReports(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "reports list")
		}

		if len(reports) == 0 {
			fmt.Fprintln(os.Stderr, "No reports found.")
			return nil
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return writeJSON(os.Stdout, reports)
		}
		formatReportsList(os.Stdout, reports)
		return nil
	},
}

// -- reports show --

var reportsShowCmd = &cobra.Command{
	Use:   "show <report-id>",
	Short: "Show full details of a report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		r, err := st.GetReport(ctx, "", args[0])
		if err != nil {
			return eris.Wrap(err, "reports show")
		}
		return writeJSON(os.Stdout, r)
	},
}

// -- reports generate --

var reportsGenerateCmd = &cobra.Command{
	Use:   "generate <assessment-id>",
	Short: "Generate or refresh the draft report of an assessment",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		svc := report.NewService(st, newAggregator(), cfg.Reports.Concurrency)

		drafts, _ := cmd.Flags().GetBool("drafts")
		if drafts {
			org, _ := cmd.Flags().GetString("org")
			stats, err := svc.RefreshDrafts(ctx, org)
			if err != nil {
				return eris.Wrap(err, "reports generate")
			}
			fmt.Fprintf(os.Stderr, "Refreshed %d, skipped %d, failed %d.\n", stats.Refreshed, stats.Skipped, stats.Failed)
			return nil
		}

		if len(args) != 1 {
			return eris.New("reports generate: an assessment id or --drafts is required")
		}
		r, err := svc.Generate(ctx, "", args[0])
		if err != nil {
			return eris.Wrap(err, "reports generate")
		}
		formatReportsList(os.Stdout, []model.Report{*r})
		return nil
	},
}

// -- reports export --

var reportsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export reports to an xlsx workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter, err := reportFilterFlags(cmd)
		if err != nil {
			return err
		}
		reports, buildings, err := report.LoadExport(ctx, st, filter)
		if err != nil {
			return err
		}

		path, _ := cmd.Flags().GetString("out")
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrapf(err, "reports export: create %s", path)
		}
		if err := report.ExportXLSX(f, reports, buildings); err != nil {
			f.Close() //nolint:errcheck
			return err
		}
		if err := f.Close(); err != nil {
			return eris.Wrapf(err, "reports export: close %s", path)
		}

		fmt.Fprintf(os.Stderr, "Exported %d reports to %s.\n", len(reports), path)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{reportsListCmd, reportsExportCmd} {
		c.Flags().String("org", "", "filter by organization id")
		c.Flags().String("building", "", "filter by building id")
		c.Flags().String("status", "", "filter by report status (draft, final)")
	}
	reportsListCmd.Flags().Int("limit", 50, "max number of reports to display")
	reportsListCmd.Flags().Bool("json", false, "print reports as JSON")
	reportsExportCmd.Flags().Int("limit", 0, "max number of reports to export (0 = all)")
	reportsExportCmd.Flags().StringP("out", "o", "reports.xlsx", "output file")

	reportsGenerateCmd.Flags().Bool("drafts", false, "regenerate every draft report of a completed assessment")
	reportsGenerateCmd.Flags().String("org", "", "limit --drafts to one organization")

	reportsCmd.AddCommand(reportsListCmd)
	reportsCmd.AddCommand(reportsShowCmd)
	reportsCmd.AddCommand(reportsGenerateCmd)
	reportsCmd.AddCommand(reportsExportCmd)
	rootCmd.AddCommand(reportsCmd)
}

func reportFilterFlags(cmd *cobra.Command) (store.ReportFilter, error) {
	org, _ := cmd.Flags().GetString("org")
	building, _ := cmd.Flags().GetString("building")
	status, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")

	f := store.ReportFilter{
		OrganizationID: org,
		BuildingID:     building,
		Status:         model.ReportStatus(status),
		Limit:          limit,
	}
	if f.Status != "" && f.Status != model.ReportStatusDraft && f.Status != model.ReportStatusFinal {
		return f, eris.Errorf("invalid --status %q (want draft or final)", status)
	}
	return f, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatReportsList writes a tabular list of reports to w.
func formatReportsList(out io.Writer, reports []model.Report) {
	p := message.NewPrinter(language.English)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tFCI\tBAND\tREPAIR COST\tGENERATED")
	_, _ = fmt.Fprintln(w, "--\t-----\t------\t---\t----\t-----------\t---------")

	for _, r := range reports {
		title := r.Title
		if len(title) > 40 {
			title = title[:37] + "..."
		}
		_, _ = p.Fprintf(w, "%s\t%s\t%s\t%.4f\t%s\t$%.2f\t%s\n",
			truncateID(r.ID),
			title,
			r.Status,
			r.FCIScore,
			r.Band,
			r.TotalRepairCost,
			r.GeneratedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
