package input

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/xuri/excelize/v2"

	"memorial/internal"
)

var ErrUnsupportedFormat = errors.New("unsupported roster format")

// Document is a roster source normalised to the quoted CSV text the parser reads.
type Document struct {
	Name     string
	Kind     internal.SourceKind
	Text     string
	Encoding Encoding
	Repaired bool
}

func Load(path string, enc Encoding) (Document, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read roster %s: %w", path, err)
	}
	return LoadBytes(filepath.Base(path), blob, enc)
}

func LoadBytes(name string, blob []byte, enc Encoding) (Document, error) {
	kind, err := KindOf(name)
	if err != nil {
		return Document{}, err
	}
	doc := Document{Name: name, Kind: kind}

	if kind == internal.SourceXLSX {
		text, err := XLSXToCSV(blob)
		if err != nil {
			return Document{}, fmt.Errorf("%s: %w", name, err)
		}
		doc.Text = text
		doc.Encoding = EncodingUTF8
		return doc, nil
	}

	decoded, err := Decode(blob, enc)
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", name, err)
	}
	doc.Encoding = decoded.Encoding
	doc.Repaired = decoded.Repaired
	doc.Text = decoded.Text
	if kind == internal.SourceHTML {
		text, err := HTMLTableToCSV(decoded.Text)
		if err != nil {
			return Document{}, fmt.Errorf("%s: %w", name, err)
		}
		doc.Text = text
	}
	return doc, nil
}

func KindOf(name string) (internal.SourceKind, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt", "":
		return internal.SourceCSV, nil
	case ".xlsx":
		return internal.SourceXLSX, nil
	case ".html", ".htm":
		return internal.SourceHTML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}

// XLSXToCSV renders the first non-empty sheet as quoted CSV lines. Cell text is
// kept verbatim, so multi-line cells produce the same continuation lines as an
// exported CSV.
func XLSXToCSV(blob []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(blob))
	if err != nil {
		return "", fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			if isBlankRow(row) {
				continue
			}
			lines = append(lines, quoteRow(row))
		}
		if len(lines) > 0 {
			return strings.Join(lines, "\n"), nil
		}
	}
	return "", fmt.Errorf("%w: workbook has no rows", ErrUnsupportedFormat)
}

// HTMLTableToCSV renders the first table with a header and at least one data
// row. <br> inside a cell becomes a line break.
func HTMLTableToCSV(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var out string
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		rows := table.Find("tr")
		if rows.Length() < 2 {
			return true
		}
		lines := make([]string, 0, rows.Length())
		rows.Each(func(_ int, row *goquery.Selection) {
			cells := []string{}
			row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cell.Find("br").ReplaceWithHtml("\n")
				cells = append(cells, strings.TrimSpace(cell.Text()))
			})
			if !isBlankRow(cells) {
				lines = append(lines, quoteRow(cells))
			}
		})
		out = strings.Join(lines, "\n")
		return false
	})
	if out == "" {
		return "", fmt.Errorf("%w: no roster table in html", ErrUnsupportedFormat)
	}
	return out, nil
}

func quoteRow(cells []string) string {
	quoted := make([]string, len(cells))
	for i, c := range cells {
		quoted[i] = `"` + strings.ReplaceAll(c, `"`, `""`) + `"`
	}
	return strings.Join(quoted, ",")
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
