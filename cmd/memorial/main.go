package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"memorial/internal/config"
	"memorial/internal/logging"
	"memorial/internal/pipeline"
	"memorial/internal/storage"
)

var (
	// Global flags
	verbose  bool
	strategy string

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "memorial",
	Short: "Parse the casualty roster into dated records",
	Long: `memorial rebuilds the quoted roster CSV into records with name, rank, unit
and date of death, stores each parse as a run, and exports runs as xlsx and json.

Rosters arrive as local files (csv, xlsx, html), from the published remote CSV,
or as mail attachments fetched over IMAP or Gmail.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(level, cfg.LogFormat)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&strategy, "strategy", "s", "", "Extraction strategy: structured|loose (default: PARSE_STRATEGY)")

	registerParseCommands()
	registerRunCommands()
	registerSourceCommands()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func openDB() (*storage.DB, error) {
	return storage.Open(cfg.DBPath)
}

// newProcessor wires the parser selected by --strategy to db.
func newProcessor(db *storage.DB) (*pipeline.ProcessingService, error) {
	p, err := pipeline.NewParser(cfg, strategy)
	if err != nil {
		return nil, err
	}
	return pipeline.NewProcessingService(db, cfg, p, logger), nil
}
