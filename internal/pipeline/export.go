package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"memorial/internal"
	"memorial/internal/storage"
	"memorial/internal/util"
)

const (
	rosterSheet      = "roster"
	diagnosticsSheet = "diagnostics"
	isoDate          = "2006-01-02"
)

func ExportRecordsToXLSX(records []internal.SoldierRecord, diag internal.Diagnostics, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), rosterSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(diagnosticsSheet); err != nil {
		return err
	}
	rtl := true
	for _, sheet := range []string{rosterSheet, diagnosticsSheet} {
		_ = f.SetSheetView(sheet, 0, &excelize.ViewOptions{RightToLeft: &rtl})
	}

	headers := []string{"index", "name", "rank", "unit", "death_date", "death_date_string"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(rosterSheet, cell, h)
	}
	for i, rec := range records {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(rosterSheet, cell, value)
		}
		set(1, i)
		set(2, rec.Name)
		set(3, rec.Rank)
		set(4, rec.Unit)
		set(5, rec.DeathDate.Format(isoDate))
		set(6, rec.DeathDateString)
	}

	summary := [][2]any{
		{"raw_records", diag.RawRecords},
		{"dropped", diag.Dropped},
		{"emitted", len(records)},
		{"unknown_name", diag.UnknownName},
		{"unknown_rank", diag.UnknownRank},
		{"unknown_unit", diag.UnknownUnit},
	}
	row := 1
	for _, kv := range summary {
		_ = f.SetCellValue(diagnosticsSheet, fmt.Sprintf("A%d", row), kv[0])
		_ = f.SetCellValue(diagnosticsSheet, fmt.Sprintf("B%d", row), kv[1])
		row++
	}
	row++
	for i, h := range []string{"record_index", "field", "snippet"} {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(diagnosticsSheet, cell, h)
	}
	for _, rec := range diag.Defaulted {
		row++
		_ = f.SetCellValue(diagnosticsSheet, fmt.Sprintf("A%d", row), rec.Index)
		_ = f.SetCellValue(diagnosticsSheet, fmt.Sprintf("B%d", row), string(rec.Field))
		_ = f.SetCellValue(diagnosticsSheet, fmt.Sprintf("C%d", row), rec.Snippet)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

type timelineEntry struct {
	Name            string `json:"name"`
	Rank            string `json:"rank"`
	Unit            string `json:"unit"`
	DeathDate       string `json:"death_date"`
	DeathDateString string `json:"death_date_string"`
}

// ExportRecordsToJSON writes the array the timeline view consumes.
func ExportRecordsToJSON(records []internal.SoldierRecord, outputPath string) error {
	entries := make([]timelineEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, timelineEntry{
			Name:            r.Name,
			Rank:            r.Rank,
			Unit:            r.Unit,
			DeathDate:       r.DeathDate.Format(isoDate),
			DeathDateString: r.DeathDateString,
		})
	}
	blob, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(outputPath, blob, 0o644)
}

// ExportRun writes a stored run as <dir>/run<ID>_<source>.xlsx and .json.
func ExportRun(db *storage.DB, runID int64, dir string) (string, string, error) {
	run, records, diag, err := db.LoadRun(runID)
	if err != nil {
		return "", "", err
	}
	source := filepath.Base(run.Source)
	source = strings.TrimSuffix(source, filepath.Ext(source))
	base := filepath.Join(dir, fmt.Sprintf("run%d_%s", run.ID, util.SanitizeFileName(source)))

	xlsxPath := base + ".xlsx"
	if err := ExportRecordsToXLSX(records, diag, xlsxPath); err != nil {
		return "", "", err
	}
	jsonPath := base + ".json"
	if err := ExportRecordsToJSON(records, jsonPath); err != nil {
		return "", "", err
	}
	return xlsxPath, jsonPath, nil
}
