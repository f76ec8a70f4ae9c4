package input

import (
	"testing"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

const sampleLine = `"1753822410-1","7 באוקטובר 2023","רס""ל ויטלי סקיפקביץ' ז""ל"`

func TestDecodeUTF8WithBOM(t *testing.T) {
	got, err := Decode([]byte("\uFEFF"+sampleLine), EncodingAuto)
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != sampleLine || got.Encoding != EncodingUTF8 || got.Repaired {
		t.Fatalf("got %+v", got)
	}
}

func TestDecodeWindows1255(t *testing.T) {
	blob, _, err := transform.Bytes(charmap.Windows1255.NewEncoder(), []byte(sampleLine))
	if err != nil {
		t.Fatal(err)
	}
	for _, enc := range []Encoding{EncodingAuto, EncodingWindows1255} {
		got, err := Decode(blob, enc)
		if err != nil {
			t.Fatal(err)
		}
		if got.Text != sampleLine || got.Encoding != EncodingWindows1255 {
			t.Fatalf("%s: got %+v", enc, got)
		}
	}
	if _, err := Decode(blob, EncodingUTF8); err == nil {
		t.Fatal("expected utf-8 error")
	}
}

func TestRepairMojibake(t *testing.T) {
	broken, _, err := transform.String(charmap.Windows1252.NewDecoder(), sampleLine)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode([]byte(broken), EncodingAuto)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Repaired || got.Text != sampleLine {
		t.Fatalf("got %+v", got)
	}

	if _, repaired := RepairMojibake(sampleLine); repaired {
		t.Fatal("clean hebrew must not be repaired")
	}
	if out, repaired := RepairMojibake("price 3×4 cm"); repaired || out != "price 3×4 cm" {
		t.Fatalf("out=%q repaired=%v", out, repaired)
	}
}

func TestParseEncoding(t *testing.T) {
	for in, want := range map[string]Encoding{
		"":       EncodingAuto,
		"UTF8":   EncodingUTF8,
		"cp1255": EncodingWindows1255,
		" auto ": EncodingAuto,
	} {
		got, err := ParseEncoding(in)
		if err != nil || got != want {
			t.Fatalf("%q: got %q err=%v", in, got, err)
		}
	}
	if _, err := ParseEncoding("latin1"); err == nil {
		t.Fatal("expected error")
	}
}
