package input

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"memorial/internal"
)

func mkXLSX(rows [][]any) []byte {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	buf := bytes.NewBuffer(nil)
	_, _ = f.WriteTo(buf)
	return buf.Bytes()
}

func TestXLSXToCSV(t *testing.T) {
	blob := mkXLSX([][]any{
		{"id", "date", "name"},
		{"1753822410-1", "7 באוקטובר 2023", "לזכר\nרס\"ל ויטלי סקיפקביץ' ז\"ל"},
		{"", "", ""},
		{"1753822410-2", "8 באוקטובר 2023", "x"},
	})
	got, err := XLSXToCSV(blob)
	if err != nil {
		t.Fatal(err)
	}
	want := strings.Join([]string{
		`"id","date","name"`,
		`"1753822410-1","7 באוקטובר 2023","לזכר`,
		`רס""ל ויטלי סקיפקביץ' ז""ל"`,
		`"1753822410-2","8 באוקטובר 2023","x"`,
	}, "\n")
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestXLSXToCSVEmpty(t *testing.T) {
	if _, err := XLSXToCSV(mkXLSX(nil)); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err=%v", err)
	}
	if _, err := XLSXToCSV([]byte("not a zip")); err == nil {
		t.Fatal("expected error")
	}
}

func TestHTMLTableToCSV(t *testing.T) {
	html := `<html><body>
<table><tr><td>layout</td></tr></table>
<table>
<tr><th>id</th><th>date</th><th>name</th></tr>
<tr><td>1753822441-132</td><td>8 באוקטובר 2023</td><td>לזכר<br>אל"ם (במיל') ליאון בר ז"ל</td></tr>
</table></body></html>`
	got, err := HTMLTableToCSV(html)
	if err != nil {
		t.Fatal(err)
	}
	want := "\"id\",\"date\",\"name\"\n\"1753822441-132\",\"8 באוקטובר 2023\",\"לזכר\nאל\"\"ם (במיל') ליאון בר ז\"\"ל\""
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}

	if _, err := HTMLTableToCSV("<p>nothing</p>"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err=%v", err)
	}
}

func TestLoadDispatchesByExtension(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "roster.csv")
	if err := os.WriteFile(csvPath, []byte("\uFEFFheader\n\"1-1\",\"x\""), 0o644); err != nil {
		t.Fatal(err)
	}
	doc, err := Load(csvPath, EncodingAuto)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Kind != internal.SourceCSV || doc.Name != "roster.csv" || !strings.HasPrefix(doc.Text, "header") {
		t.Fatalf("doc=%+v", doc)
	}

	xlsxDoc, err := LoadBytes("roster.XLSX", mkXLSX([][]any{{"h"}, {"1-1"}}), EncodingAuto)
	if err != nil {
		t.Fatal(err)
	}
	if xlsxDoc.Kind != internal.SourceXLSX || xlsxDoc.Text != "\"h\"\n\"1-1\"" {
		t.Fatalf("doc=%+v", xlsxDoc)
	}

	if _, err := LoadBytes("roster.pdf", []byte("%PDF"), EncodingAuto); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err=%v", err)
	}
	if _, err := Load(filepath.Join(dir, "missing.csv"), EncodingAuto); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err=%v", err)
	}
}
