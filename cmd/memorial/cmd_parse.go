package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"memorial/internal"
	"memorial/internal/pipeline"
)

var (
	parseJSONOut string
	parseXLSXOut string
	parseStore   bool

	diagnoseField string
	diagnoseLimit int
)

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Parse a roster file and print the run summary",
	Long: `Parse a roster (csv, xlsx or html) and print how many records were read,
dropped for lacking a date, and defaulted to Unknown per field.

With --store the run is saved to the database; --json and --xlsx write exports.`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose <file>",
	Short: "List records whose fields fell back to Unknown",
	Args:  cobra.ExactArgs(1),
	RunE:  runDiagnose,
}

var findCmd = &cobra.Command{
	Use:   "find <file> <record-id>",
	Short: "Show how one record is extracted",
	Long: `Find the reassembled record with the given id (for example 1753822441-132)
and print the date match, the raw name span, every honorific occurrence and
the extracted fields.`,
	Args: cobra.ExactArgs(2),
	RunE: runFind,
}

func registerParseCommands() {
	parseCmd.Flags().StringVar(&parseJSONOut, "json", "", "Write records as timeline json to this path")
	parseCmd.Flags().StringVar(&parseXLSXOut, "xlsx", "", "Write records and diagnostics as xlsx to this path")
	parseCmd.Flags().BoolVar(&parseStore, "store", false, "Store the run in the database")

	diagnoseCmd.Flags().StringVar(&diagnoseField, "field", "name", "Field to list: name|rank|unit|all")
	diagnoseCmd.Flags().IntVar(&diagnoseLimit, "limit", 0, "Maximum records to list (0 = all)")

	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(diagnoseCmd)
	rootCmd.AddCommand(findCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	path := args[0]
	out := cmd.OutOrStdout()

	p, err := pipeline.NewParser(cfg, strategy)
	if err != nil {
		return err
	}

	var records []internal.SoldierRecord
	var diag internal.Diagnostics
	if parseStore {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		run, err := pipeline.NewProcessingService(db, cfg, p, logger).ProcessFile(path)
		if err != nil {
			return err
		}
		records, diag = run.Records, run.Diagnostics
		fmt.Fprintf(out, "stored run=%d trace=%s\n", run.RunID, run.TraceID)
	} else {
		doc, res, err := pipeline.ParseFile(p, path, cfg.InputEncoding)
		if err != nil {
			return err
		}
		if doc.Repaired {
			logger.Warn("repaired mis-decoded input", zap.String("source", path))
		}
		records, diag = res.Records, res.Diagnostics
	}

	printSummary(out, path, string(p.Strategy()), len(records), diag)

	if parseJSONOut != "" {
		if err := pipeline.ExportRecordsToJSON(records, parseJSONOut); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", parseJSONOut)
	}
	if parseXLSXOut != "" {
		if err := pipeline.ExportRecordsToXLSX(records, diag, parseXLSXOut); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", parseXLSXOut)
	}
	return nil
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	path := args[0]
	out := cmd.OutOrStdout()

	var fields []internal.Field
	switch diagnoseField {
	case "all":
		fields = []internal.Field{internal.FieldName, internal.FieldRank, internal.FieldUnit}
	case string(internal.FieldName), string(internal.FieldRank), string(internal.FieldUnit):
		fields = []internal.Field{internal.Field(diagnoseField)}
	default:
		return fmt.Errorf("unknown field %q: want name, rank, unit or all", diagnoseField)
	}

	p, err := pipeline.NewParser(cfg, strategy)
	if err != nil {
		return err
	}
	_, res, err := pipeline.ParseFile(p, path, cfg.InputEncoding)
	if err != nil {
		return err
	}
	printSummary(out, path, string(p.Strategy()), len(res.Records), res.Diagnostics)

	for _, field := range fields {
		fmt.Fprintf(out, "\nunknown %s (%d):\n", field, res.Diagnostics.UnknownCount(field))
		listed := 0
		for _, d := range res.Diagnostics.Defaulted {
			if d.Field != field {
				continue
			}
			if diagnoseLimit > 0 && listed == diagnoseLimit {
				fmt.Fprintln(out, "  ...")
				break
			}
			rec := res.Records[d.Index]
			fmt.Fprintf(out, "  #%d %s | %s | %s | %s\n", d.Index, rec.Name, rec.Rank, rec.Unit, rec.DeathDateString)
			fmt.Fprintf(out, "      %s\n", d.Snippet)
			listed++
		}
	}

	hazards := pipeline.TooltipHazards(res.Records)
	fmt.Fprintf(out, "\ntooltip hazards (%d):\n", len(hazards))
	for i, h := range hazards {
		if diagnoseLimit > 0 && i == diagnoseLimit {
			fmt.Fprintln(out, "  ...")
			break
		}
		fmt.Fprintf(out, "  #%d %v %s\n", h.Index, h.Fields, res.Records[h.Index].Name)
	}
	return nil
}

func runFind(cmd *cobra.Command, args []string) error {
	path, id := args[0], args[1]
	out := cmd.OutOrStdout()

	raw, err := pipeline.FindInFile(path, cfg.InputEncoding, id)
	if err != nil {
		return err
	}
	p, err := pipeline.NewParser(cfg, strategy)
	if err != nil {
		return err
	}

	t := p.Trace(raw)
	fmt.Fprintf(out, "record: %s\n", t.Raw)
	fmt.Fprintf(out, "strategy: %s\n", t.Strategy)
	if t.Dated {
		fmt.Fprintf(out, "date: %s (%q)\n", t.Date.Format("2006-01-02"), t.DateString)
	} else {
		fmt.Fprintln(out, "date: none, record is dropped")
	}
	if t.NameSpanOK {
		fmt.Fprintf(out, "name span: %q\n", t.NameSpan)
	} else {
		fmt.Fprintln(out, "name span: none")
	}
	fmt.Fprintf(out, "name: %s\nrank: %s\nunit: %s\n", t.Fields.Name, t.Fields.Rank, t.Fields.Unit)
	fmt.Fprintf(out, "fields: %d\n", t.FieldCount)
	for i, h := range t.Honorifics {
		fmt.Fprintf(out, "honorific %d: ...%s...\n", i+1, h)
	}
	return nil
}

func printSummary(w io.Writer, source, strategyName string, emitted int, d internal.Diagnostics) {
	fmt.Fprintf(w, "source=%s strategy=%s\n", source, strategyName)
	fmt.Fprintf(w, "raw=%d emitted=%d dropped=%d unknownName=%d unknownRank=%d unknownUnit=%d\n",
		d.RawRecords, emitted, d.Dropped, d.UnknownName, d.UnknownRank, d.UnknownUnit)
}
