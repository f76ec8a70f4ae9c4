package pipeline

import (
	"path/filepath"
	"testing"

	"memorial/internal"
	"memorial/internal/config"
	"memorial/internal/parser"
)

func TestTooltipHazards(t *testing.T) {
	records := []internal.SoldierRecord{
		{Name: "דניאל כהן", Rank: "סרן", Unit: "חטיבה 7"},
		{Name: "ויטלי סקיפקביץ'", Rank: `רס""ל`, Unit: "עוצבת הקומנדו"},
		{Name: "a<b", Rank: "x", Unit: "y\tz"},
	}
	got := TooltipHazards(records)
	if len(got) != 2 {
		t.Fatalf("len=%d", len(got))
	}
	if got[0].Index != 1 || len(got[0].Fields) != 2 {
		t.Fatalf("hazard=%+v", got[0])
	}
	if got[1].Index != 2 || got[1].Fields[0] != internal.FieldName || got[1].Fields[1] != internal.FieldUnit {
		t.Fatalf("hazard=%+v", got[1])
	}
}

func TestDetectRosterMail(t *testing.T) {
	hit := DetectRosterMail("רשימת חללים", "", "", []string{"roster.csv"})
	if !hit.IsRoster {
		t.Fatalf("score=%v", hit.Score)
	}
	pasted := DetectRosterMail("", "\"1-1\",\"נפל\"\n\"2-2\",\"b\"", "", nil)
	if !pasted.IsRoster {
		t.Fatalf("score=%v", pasted.Score)
	}
	miss := DetectRosterMail("lunch", "see you at noon", "", []string{"menu.pdf"})
	if miss.IsRoster {
		t.Fatalf("score=%v", miss.Score)
	}
}

func TestRosterFromBody(t *testing.T) {
	text, ok := rosterFromBody("שלום,\r\nלהלן הרשימה:\r\n\"1-1\",\"7 באוקטובר 2023\"\r\n\"2-2\",\"x\"")
	if !ok {
		t.Fatal("no roster")
	}
	if got := parser.Reassemble(text); len(got) != 2 {
		t.Fatalf("records=%v", got)
	}
	if _, ok := rosterFromBody("no records here"); ok {
		t.Fatal("unexpected roster")
	}
}

func TestNewParserOverrides(t *testing.T) {
	cfg := config.Config{ParseStrategy: "structured", DiagSnippetRunes: 150}
	p, err := NewParser(cfg, "loose")
	if err != nil {
		t.Fatal(err)
	}
	if p.Strategy() != parser.StrategyLoose {
		t.Fatalf("strategy=%s", p.Strategy())
	}
	if _, err := NewParser(cfg, "fuzzy"); err == nil {
		t.Fatal("expected error")
	}
	cfg.RulesPath = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := NewParser(cfg, ""); err == nil {
		t.Fatal("expected rules error")
	}
}

func TestParseAndFindInFile(t *testing.T) {
	path := filepath.Join("..", "parser", "testdata", "roster.csv")
	p, err := NewParser(config.Config{ParseStrategy: "loose", DiagSnippetRunes: 150}, "")
	if err != nil {
		t.Fatal(err)
	}
	doc, res, err := ParseFile(p, path, "auto")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Kind != internal.SourceCSV || len(res.Records) != 5 {
		t.Fatalf("kind=%s len=%d", doc.Kind, len(res.Records))
	}
	raw, err := FindInFile(path, "", "1753822520-450")
	if err != nil {
		t.Fatal(err)
	}
	if rec, ok := p.ParseRecord(raw); !ok || rec.Name != "דניאל כהן" {
		t.Fatalf("rec=%+v ok=%v", rec, ok)
	}
	if _, err := FindInFile(path, "", "0-0"); err == nil {
		t.Fatal("expected not found")
	}
}

func TestExtractRosterFromHTMLBody(t *testing.T) {
	raw := "From: a@example.com\r\n" +
		"Subject: roster\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n\r\n" +
		"<table><tr><th>id</th><th>text</th></tr>" +
		"<tr><td>1753822520-450</td><td>12 בדצמבר 2023</td><td>לזכר<br>סרן דניאל כהן ז\"ל</td><td>סרן</td><td>חטיבה 7</td><td>נפל בקרב</td></tr></table>\r\n"
	roster, err := ExtractRosterFromMailRaw([]byte(raw), "auto", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(roster.Documents) != 1 || roster.Documents[0].Kind != internal.SourceHTML {
		t.Fatalf("documents=%+v", roster.Documents)
	}
	p, err := NewParser(config.Config{ParseStrategy: "structured", DiagSnippetRunes: 150}, "")
	if err != nil {
		t.Fatal(err)
	}
	res := p.Parse(roster.Documents[0].Text)
	if len(res.Records) != 1 {
		t.Fatalf("len=%d", len(res.Records))
	}
	want := internal.SoldierRecord{Name: "דניאל כהן", Rank: "סרן", Unit: "חטיבה 7"}
	got := res.Records[0]
	if got.Name != want.Name || got.Rank != want.Rank || got.Unit != want.Unit {
		t.Fatalf("got %+v", got)
	}
}
