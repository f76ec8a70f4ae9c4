package parser

import (
	"errors"
	"testing"

	"memorial/internal"
)

func newStrategy(t *testing.T, name StrategyName) FieldStrategy {
	t.Helper()
	s, err := NewStrategy(name, DefaultRules())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

var nameCases = []struct {
	raw      string
	span     string
	wantName string
}{
	{
		raw:      `"1700000000-1","7 באוקטובר 2023","לזכר רס"ל ויטלי סקיפקביץ' ז"ל"`,
		span:     `רס"ל ויטלי סקיפקביץ'`,
		wantName: `ויטלי סקיפקביץ'`,
	},
	{
		raw:      `"1700000000-2","7 באוקטובר 2023","לזכר אל"ם (במיל') ליאון בר (בן מוחה) ז"ל"`,
		span:     `אל"ם (במיל') ליאון בר (בן מוחה)`,
		wantName: `ליאון בר (בן מוחה)`,
	},
	{
		raw:      `"1700000000-3","7 באוקטובר 2023","לזכר רס"ן שילה הר-אבן ז"ל"`,
		span:     `רס"ן שילה הר-אבן`,
		wantName: `שילה הר-אבן`,
	},
	{
		raw:      `"1700000000-4","7 באוקטובר 2023","לזכר רס""ל ויטלי סקיפקביץ' ז""ל"`,
		span:     `רס""ל ויטלי סקיפקביץ'`,
		wantName: `ויטלי סקיפקביץ'`,
	},
	{
		raw:      `"1700000000-6","7 באוקטובר 2023","לזכר סמל דנה לוי ז״ל"`,
		span:     `סמל דנה לוי`,
		wantName: `דנה לוי`,
	},
	{
		raw:      "\"1700000000-7\",\"7 באוקטובר 2023\",\"לזכר\u00a0רס\"\"ל ויטלי ז\"\"ל\"",
		span:     `רס""ל ויטלי`,
		wantName: `ויטלי`,
	},
	{
		raw:      "\"1700000000-8\",\"7 באוקטובר 2023\",\"לזכר רס\"\"ל\u00a0ויטלי סקיפקביץ'\u00a0ז\"\"ל\"",
		span:     "רס\"\"ל\u00a0ויטלי סקיפקביץ'",
		wantName: `ויטלי סקיפקביץ'`,
	},
	{
		raw:      "\"1700000000-9\",\"7 באוקטובר 2023\",\"לזכר\u2009סמל דנה לוי\u202fז״ל\"",
		span:     `סמל דנה לוי`,
		wantName: `דנה לוי`,
	},
}

func TestNameExtraction(t *testing.T) {
	for _, name := range []StrategyName{StrategyLoose, StrategyStructured} {
		s := newStrategy(t, name)
		for _, tc := range nameCases {
			span, ok := s.NameSpan(tc.raw)
			if !ok || span != tc.span {
				t.Fatalf("%s span(%q)=%q ok=%v want %q", name, tc.raw, span, ok, tc.span)
			}
			if got := s.Extract(tc.raw).Name; got != tc.wantName {
				t.Fatalf("%s name(%q)=%q want %q", name, tc.raw, got, tc.wantName)
			}
		}
	}
}

func TestNoHonorificDefaultsEverything(t *testing.T) {
	for _, name := range []StrategyName{StrategyLoose, StrategyStructured} {
		got := newStrategy(t, name).Extract(`"1700000000-5","foo"`)
		if got != unknownFields() {
			t.Fatalf("%s: got %+v", name, got)
		}
	}
}

func TestBlankNameSpanIsUnknown(t *testing.T) {
	raw := `"1-1","x   ז"ל"`
	for _, name := range []StrategyName{StrategyLoose, StrategyStructured} {
		s := newStrategy(t, name)
		span, ok := s.NameSpan(raw)
		if !ok || span != "" {
			t.Fatalf("%s: span=%q ok=%v", name, span, ok)
		}
		if got := s.Extract(raw).Name; got != internal.Unknown {
			t.Fatalf("%s: name=%q", name, got)
		}
	}
}

func TestBareRankIsKeptAsName(t *testing.T) {
	raw := `"1-1","x","לזכר סרן ז"ל"`
	for _, name := range []StrategyName{StrategyLoose, StrategyStructured} {
		if got := newStrategy(t, name).Extract(raw).Name; got != "סרן" {
			t.Fatalf("%s: name=%q", name, got)
		}
	}
}

func TestLooseRankAndUnit(t *testing.T) {
	s := newStrategy(t, StrategyLoose)
	raw := `"1-1","12 בדצמבר 2023","לזכר סרן דניאל כהן ז""ל","סרן","חטיבה 7","נפל בקרב"`
	got := s.Extract(raw)
	want := Fields{Name: "דניאל כהן", Rank: "סרן", Unit: "חטיבה 7"}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestLooseUnitNeedsQuoteFreeRank(t *testing.T) {
	s := newStrategy(t, StrategyLoose)
	raw := `"1-1","7 באוקטובר 2023","לזכר רס""ל ויטלי סקיפקביץ' ז""ל","רס""ל","עוצבת הקומנדו","נפל בקרב"`
	got := s.Extract(raw)
	if got.Rank != `רס""ל` {
		t.Fatalf("rank=%q", got.Rank)
	}
	if got.Unit != internal.Unknown {
		t.Fatalf("unit=%q", got.Unit)
	}
}

func TestStructuredRankAndUnit(t *testing.T) {
	s := newStrategy(t, StrategyStructured)
	raw := `"1-1","7 באוקטובר 2023","לזכר רס""ל ויטלי סקיפקביץ' ז""ל"," רס""ל ","עוצבת הקומנדו","נפל בקרב"`
	want := Fields{Name: "ויטלי סקיפקביץ'", Rank: `רס""ל`, Unit: "עוצבת הקומנדו"}
	if got := s.Extract(raw); got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}

	// The last field keeps its closing quote.
	short := s.Extract(`"1-1","7 באוקטובר 2023","x","סמל"`)
	if short.Rank != `סמל"` || short.Unit != internal.Unknown {
		t.Fatalf("short=%+v", short)
	}
	blank := s.Extract(`"1-1","7 באוקטובר 2023","x","  ","","y"`)
	if blank.Rank != internal.Unknown || blank.Unit != internal.Unknown {
		t.Fatalf("blank=%+v", blank)
	}
}

func TestNameStopsAtFirstHonorific(t *testing.T) {
	raw := `"1-1","x","לזכר סמל אבי כהן ז"ל ובנו דוד ז"ל"`
	for _, name := range []StrategyName{StrategyLoose, StrategyStructured} {
		s := newStrategy(t, name)
		if span, _ := s.NameSpan(raw); span != "סמל אבי כהן" {
			t.Fatalf("%s span=%q", name, span)
		}
		if got := s.Extract(raw).Name; got != "אבי כהן" {
			t.Fatalf("%s name=%q", name, got)
		}
	}
}

func TestNameFallsThroughToLaterHonorific(t *testing.T) {
	// The first honorific has no name before it.
	raw := `"1-1","ז"ל","לזכר סמל אבי כהן ז"ל"`
	for _, name := range []StrategyName{StrategyLoose, StrategyStructured} {
		if got := newStrategy(t, name).Extract(raw).Name; got != "אבי כהן" {
			t.Fatalf("%s name=%q", name, got)
		}
	}
}

func TestStructuredStripsRankWithOrWithoutAside(t *testing.T) {
	s := newStrategy(t, StrategyStructured)
	for raw, want := range map[string]string{
		`"1-1","x","לזכר סרן דניאל כהן ז"ל"`:          "דניאל כהן",
		`"1-1","x","לזכר סרן (במיל') דניאל כהן ז"ל"`:  "דניאל כהן",
		`"1-1","x","לזכר תא"ל (מיל')  דניאל כהן ז"ל"`: "דניאל כהן",
		`"1-1","x","לזכר סרן(במיל')דניאל כהן ז"ל"`:    "דניאל כהן",
	} {
		if got := s.Extract(raw).Name; got != want {
			t.Fatalf("name(%q)=%q want %q", raw, got, want)
		}
	}
}

func TestStructuredTypographicApostrophe(t *testing.T) {
	raw := `"1-1","x","לזכר סמל ג’ורג’ חביב ז"ל"`
	if got := newStrategy(t, StrategyStructured).Extract(raw).Name; got != "ג’ורג’ חביב" {
		t.Fatalf("structured name=%q", got)
	}
	if got := newStrategy(t, StrategyLoose).Extract(raw).Name; got != "חביב" {
		t.Fatalf("loose name=%q", got)
	}
}

func TestParseStrategyName(t *testing.T) {
	for in, want := range map[string]StrategyName{
		"":           StrategyStructured,
		"structured": StrategyStructured,
		" Loose ":    StrategyLoose,
		"STRUCTURED": StrategyStructured,
	} {
		got, err := ParseStrategyName(in)
		if err != nil || got != want {
			t.Fatalf("%q: got %q err=%v", in, got, err)
		}
	}
	if _, err := ParseStrategyName("fuzzy"); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("err=%v", err)
	}
	if _, err := NewStrategy("fuzzy", DefaultRules()); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("err=%v", err)
	}
}
