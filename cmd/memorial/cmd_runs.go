package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"memorial/internal"
	"memorial/internal/pipeline"
)

var (
	runsLimit int
	exportDir string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  listRuns,
}

var exportCmd = &cobra.Command{
	Use:   "export [run-id]",
	Short: "Export a stored run as xlsx and json (default: latest run)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  exportRun,
}

func registerRunCommands() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum runs to list")
	exportCmd.Flags().StringVarP(&exportDir, "out", "o", "", "Output directory (default: OUTPUT_DIR)")

	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(exportCmd)
}

func listRuns(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(runsLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no runs stored")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tKIND\tSTRATEGY\tRAW\tEMITTED\tDROPPED\tUNKNOWN(N/R/U)\tSOURCE")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%d\t%d/%d/%d\t%s\n",
			r.ID, r.CreatedAt, r.SourceKind, r.Strategy, r.RawRecords, r.Emitted, r.Dropped,
			r.UnknownName, r.UnknownRank, r.UnknownUnit, r.Source)
	}
	return tw.Flush()
}

func exportRun(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	var run internal.RunSummary
	if len(args) == 1 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid run id %q", args[0])
		}
		run, err = db.GetRun(id)
		if err != nil {
			return err
		}
	} else {
		run, err = db.LatestRun()
		if err != nil {
			return fmt.Errorf("nothing to export: %w", err)
		}
	}

	dir := exportDir
	if dir == "" {
		dir = cfg.OutputDir
	}
	xlsxPath, jsonPath, err := pipeline.ExportRun(db, run.ID, dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "exported run=%d emitted=%d\n  %s\n  %s\n", run.ID, run.Emitted, xlsxPath, jsonPath)
	return nil
}
