package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/onyx-report/onyx-cli/internal/catalog"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "migrate")
		}
		defer st.Close() //nolint:errcheck

		zap.L().Info("migrations applied", zap.String("driver", cfg.Store.Driver))
		fmt.Fprintln(os.Stderr, "Schema is up to date.")
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Migrate and load the Uniformat II element catalog",
	Long:  "Applies the schema, then inserts the Uniformat II element catalog if the elements table is empty. Safe to run repeatedly.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		elems, err := catalog.Load()
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "seed")
		}
		defer st.Close() //nolint:errcheck

		n, err := st.SeedElements(ctx, elems)
		if err != nil {
			return eris.Wrap(err, "seed elements")
		}
		total, err := st.CountElements(ctx)
		if err != nil {
			return eris.Wrap(err, "count elements")
		}

		zap.L().Info("element catalog seeded",
			zap.Int("inserted", n),
			zap.Int("total", total),
			zap.Int("major_groups", len(catalog.MajorGroups(elems))),
		)
		if n == 0 {
			fmt.Fprintf(os.Stderr, "Element catalog already present (%d elements).\n", total)
			return nil
		}
		fmt.Fprintf(os.Stderr, "Seeded %d elements.\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
}
