// Package parser rebuilds logical records from the casualty roster CSV and
// extracts a dated SoldierRecord from each one.
//
// The roster is a quoted CSV whose field values may contain raw newlines. The
// parser does not attempt real CSV decoding: records are stitched back together
// by line, then name, rank, unit and date are pulled out with locale rules (see
// rules.yaml). Records without a recognisable date are dropped; fields that
// cannot be found are set to internal.Unknown and reported in Diagnostics.
package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"memorial/internal"
	"memorial/internal/util"
)

const DefaultSnippetRunes = 150

type Result struct {
	Records     []internal.SoldierRecord
	Diagnostics internal.Diagnostics
}

type Option func(*Parser)

// WithSnippetRunes bounds the record excerpt kept for each defaulted field.
func WithSnippetRunes(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.snippetRunes = n
		}
	}
}

// WithUnescapeQuotes collapses CSV-escaped `""` in emitted fields.
func WithUnescapeQuotes(on bool) Option {
	return func(p *Parser) { p.unescape = on }
}

type Parser struct {
	dates        *DateExtractor
	honorificRE  *regexp.Regexp
	strategy     FieldStrategy
	snippetRunes int
	unescape     bool
}

func New(rules Rules, strategy StrategyName, opts ...Option) (*Parser, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	dates, err := NewDateExtractor(rules.Months)
	if err != nil {
		return nil, err
	}
	fs, err := NewStrategy(strategy, rules)
	if err != nil {
		return nil, err
	}
	honorificRE, err := regexp.Compile(honorificPattern(rules.Honorific))
	if err != nil {
		return nil, fmt.Errorf("%w: honorific: %v", ErrInvalidRules, err)
	}
	p := &Parser{dates: dates, honorificRE: honorificRE, strategy: fs, snippetRunes: DefaultSnippetRunes}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Parser) Strategy() StrategyName { return p.strategy.Name() }

// Parse is a pure function of text: the same input always yields the same
// records in input order.
func (p *Parser) Parse(text string) Result {
	var res Result
	eachRecord(text, func(raw string) {
		res.Diagnostics.RawRecords++
		rec, ok := p.ParseRecord(raw)
		if !ok {
			res.Diagnostics.Dropped++
			return
		}
		idx := len(res.Records)
		res.Records = append(res.Records, rec)
		p.noteDefaults(&res.Diagnostics, idx, rec, raw)
	})
	return res
}

func (p *Parser) ParseRecord(raw string) (internal.SoldierRecord, bool) {
	date, matched, ok := p.dates.Extract(raw)
	if !ok {
		return internal.SoldierRecord{}, false
	}
	f := p.strategy.Extract(raw)
	if p.unescape {
		f.Name = unescapeQuotes(f.Name)
		f.Rank = unescapeQuotes(f.Rank)
		f.Unit = unescapeQuotes(f.Unit)
	}
	return internal.SoldierRecord{
		Name:            f.Name,
		Rank:            f.Rank,
		Unit:            f.Unit,
		DeathDate:       date,
		DeathDateString: matched,
	}, true
}

func (p *Parser) noteDefaults(d *internal.Diagnostics, idx int, rec internal.SoldierRecord, raw string) {
	for _, f := range []struct {
		field   internal.Field
		value   string
		counter *int
	}{
		{internal.FieldName, rec.Name, &d.UnknownName},
		{internal.FieldRank, rec.Rank, &d.UnknownRank},
		{internal.FieldUnit, rec.Unit, &d.UnknownUnit},
	} {
		if f.value != internal.Unknown {
			continue
		}
		*f.counter++
		d.Defaulted = append(d.Defaulted, internal.DefaultedRecord{
			Index:   idx,
			Field:   f.field,
			Snippet: util.Snippet(raw, p.snippetRunes),
		})
	}
}

func unescapeQuotes(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}

// Trace explains how one RawRecord was (or was not) extracted.
type Trace struct {
	Raw        string
	Strategy   StrategyName
	Dated      bool
	Date       time.Time
	DateString string
	NameSpan   string
	NameSpanOK bool
	Fields     Fields
	FieldCount int
	// Honorifics holds the text around every honorific occurrence.
	Honorifics []string
}

const traceContextBefore, traceContextAfter = 50, 20

func (p *Parser) Trace(raw string) Trace {
	t := Trace{Raw: raw, Strategy: p.strategy.Name()}
	t.Date, t.DateString, t.Dated = p.dates.Extract(raw)
	t.NameSpan, t.NameSpanOK = p.strategy.NameSpan(raw)
	t.Fields = p.strategy.Extract(raw)
	t.FieldCount = len(strings.Split(raw, fieldDelimiter))

	runes := []rune(raw)
	for _, loc := range p.honorificRE.FindAllStringIndex(raw, -1) {
		start := utf8.RuneCountInString(raw[:loc[0]])
		from := max(0, start-traceContextBefore)
		to := min(len(runes), start+traceContextAfter)
		t.Honorifics = append(t.Honorifics, string(runes[from:to]))
	}
	return t
}

// FindRecord returns the reassembled record containing id, e.g. "1753822441-132".
func FindRecord(text, id string) (string, bool) {
	var found string
	eachRecord(text, func(raw string) {
		if found == "" && strings.Contains(raw, id) {
			found = raw
		}
	})
	return found, found != ""
}
