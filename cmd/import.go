package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/onyx-report/onyx-cli/internal/importer"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-load records from spreadsheets",
}

var importBuildingsCmd = &cobra.Command{
	Use:   "buildings <file>",
	Short: "Import buildings from a CSV, TSV or XLSX file",
	Long: `Reads a header row followed by one building per row. The name and type
columns are required; rows that fail validation are reported and skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		org, _ := cmd.Flags().GetString("org")
		if org == "" {
			return eris.New("import buildings: --org is required")
		}
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if _, err := st.GetOrganization(ctx, org); err != nil {
			return eris.Wrapf(err, "import buildings: organization %s", org)
		}

		rowCh, errCh := importer.Open(ctx, args[0])
		res, err := importer.Buildings(ctx, st, org, rowCh, errCh, dryRun)
		if res != nil {
			formatImportResult(os.Stderr, res, dryRun)
		}
		return err
	},
}

func init() {
	importBuildingsCmd.Flags().String("org", "", "organization that owns the imported buildings")
	importBuildingsCmd.Flags().Bool("dry-run", false, "validate rows without writing them")

	importCmd.AddCommand(importBuildingsCmd)
	rootCmd.AddCommand(importCmd)
}

func formatImportResult(out io.Writer, res *importer.Result, dryRun bool) {
	for _, r := range res.Rejected {
		fmt.Fprintf(out, "skipped %s\n", r.Error())
	}
	verb := "Imported"
	if dryRun {
		verb = "Validated"
	}
	fmt.Fprintf(out, "%s %d buildings, rejected %d.\n", verb, res.Imported, len(res.Rejected))
}
