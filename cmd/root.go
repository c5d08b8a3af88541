package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/onyx-report/onyx-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "onyx",
	Short: "Building condition assessments and FCI reporting",
	Long:  "Catalogs buildings, records Uniformat element assessments, and generates Facility Condition Index reports over a REST API and CLI.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		applyStoreFlags(cmd, c)
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		zap.L().Debug("store selected",
			zap.String("driver", cfg.Store.Driver),
			zap.String("command", cmd.CommandPath()),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("sqlite", "", "use the SQLite database at this path instead of the configured store")
}

// applyStoreFlags lets --sqlite override the configured store for a single
// invocation, which is how assessors work offline against a local file.
func applyStoreFlags(cmd *cobra.Command, c *config.Config) {
	path, _ := cmd.Root().PersistentFlags().GetString("sqlite")
	if path == "" {
		return
	}
	c.Store.Driver = "sqlite"
	c.Store.SQLitePath = path
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
