package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"memorial/internal"
)

type StrategyName string

const (
	// StrategyLoose pulls every field with an independent regex.
	StrategyLoose StrategyName = "loose"
	// StrategyStructured splits on the quoted-field delimiter for rank and unit.
	StrategyStructured StrategyName = "structured"
)

var ErrUnknownStrategy = errors.New("unknown extraction strategy")

func ParseStrategyName(s string) (StrategyName, error) {
	switch StrategyName(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyStructured:
		return StrategyStructured, nil
	case StrategyLoose:
		return StrategyLoose, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// fieldDelimiter separates quoted CSV fields inside a RawRecord.
const fieldDelimiter = `","`

type Fields struct {
	Name string
	Rank string
	Unit string
}

func unknownFields() Fields {
	return Fields{Name: internal.Unknown, Rank: internal.Unknown, Unit: internal.Unknown}
}

// FieldStrategy extracts name, rank and unit from one RawRecord. Failed fields
// hold internal.Unknown.
type FieldStrategy interface {
	Name() StrategyName
	Extract(raw string) Fields
	// NameSpan is the honorific-anchored span before rank stripping.
	NameSpan(raw string) (string, bool)
}

func NewStrategy(name StrategyName, rules Rules) (FieldStrategy, error) {
	switch name {
	case StrategyLoose:
		return newLooseStrategy(rules)
	case StrategyStructured:
		return newStructuredStrategy(rules)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// spaceClass is whitespace as it appears in scraped text: ASCII, no-break and
// other Unicode separators, and stray BOMs.
const spaceClass = `[\s\p{Z}\x{FEFF}]`

type nameExtractor struct {
	honorificRE *regexp.Regexp
	spanRE      *regexp.Regexp
	prefixRE    *regexp.Regexp
}

func newNameExtractor(hon, nameClass, quantifier, prefix string) (nameExtractor, error) {
	var n nameExtractor
	for _, e := range []struct {
		dst  **regexp.Regexp
		expr string
	}{
		{&n.honorificRE, hon},
		{&n.spanRE, spaceClass + `+(` + nameClass + quantifier + `)` + spaceClass + `+` + hon},
		{&n.prefixRE, prefix},
	} {
		re, err := regexp.Compile(e.expr)
		if err != nil {
			return nameExtractor{}, fmt.Errorf("%w: %v", ErrInvalidRules, err)
		}
		*e.dst = re
	}
	return n, nil
}

// span finds the name before an honorific. Each honorific closes its own
// segment, so a span never runs across an earlier honorific.
func (n nameExtractor) span(raw string) (string, bool) {
	from := 0
	for _, loc := range n.honorificRE.FindAllStringIndex(raw, -1) {
		if m := n.spanRE.FindStringSubmatch(raw[from:loc[1]]); m != nil {
			return trimSpace(m[1]), true
		}
		from = loc[1]
	}
	return "", false
}

// clean removes at most one leading rank group.
func (n nameExtractor) clean(span string) string {
	if loc := n.prefixRE.FindStringIndex(span); loc != nil {
		span = span[loc[1]:]
	}
	return trimSpace(span)
}

func (n nameExtractor) extract(raw string) string {
	span, ok := n.span(raw)
	if !ok {
		return internal.Unknown
	}
	name := n.clean(span)
	if name == "" {
		return internal.Unknown
	}
	return name
}

func trimSpace(s string) string {
	return strings.TrimFunc(s, isSpace)
}

type looseStrategy struct {
	names  nameExtractor
	rankRE *regexp.Regexp
	unitRE *regexp.Regexp
}

const looseNameClass = `[א-ת\s\p{Z}\x{FEFF}'\-()׳״"]`

func newLooseStrategy(rules Rules) (*looseStrategy, error) {
	ranks, err := rankAlternation(rules.LegacyRanks)
	if err != nil {
		return nil, err
	}
	hon := honorificPattern(rules.Honorific)
	fell := regexp.QuoteMeta(strings.TrimSpace(rules.FellKeyword))

	names, err := newNameExtractor(hon, looseNameClass, `+`,
		`^(?:(?:`+ranks+`)(?:`+spaceClass+`*\([^)]*\))?|\([^)]*\))`+spaceClass+`+`)
	if err != nil {
		return nil, err
	}
	s := &looseStrategy{names: names}
	exprs := []struct {
		dst  **regexp.Regexp
		expr string
	}{
		{&s.rankRE, `","((?:` + ranks + `)[^"]*)`},
		{&s.unitRE, hon + `","([^"]+)","([^"]+)","` + fell},
	}
	for _, e := range exprs {
		re, err := regexp.Compile(e.expr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
		}
		*e.dst = re
	}
	return s, nil
}

func (s *looseStrategy) Name() StrategyName { return StrategyLoose }

func (s *looseStrategy) NameSpan(raw string) (string, bool) { return s.names.span(raw) }

func (s *looseStrategy) Extract(raw string) Fields {
	out := unknownFields()
	out.Name = s.names.extract(raw)
	if m := s.rankRE.FindStringSubmatch(raw); m != nil {
		if rank := strings.TrimSpace(m[1]); rank != "" {
			out.Rank = rank
		}
	}
	if m := s.unitRE.FindStringSubmatch(raw); m != nil {
		if unit := strings.TrimSpace(m[2]); unit != "" {
			out.Unit = unit
		}
	}
	return out
}

type structuredStrategy struct {
	names nameExtractor
}

// structuredNameClass widens the loose class with typographic apostrophes.
const structuredNameClass = `[א-ת\s\p{Z}\x{FEFF}'\-()׳״"’‘` + "`" + `]`

// The structured prefix drops the rank whether or not a parenthesised aside
// follows it.
func newStructuredStrategy(rules Rules) (*structuredStrategy, error) {
	ranks, err := rankAlternation(rules.StructuredRanks)
	if err != nil {
		return nil, err
	}
	names, err := newNameExtractor(honorificPattern(rules.Honorific), structuredNameClass, `+?`,
		`^(?:`+ranks+`)(?:`+spaceClass+`*\([^)]*\)?`+spaceClass+`*|`+spaceClass+`+)`)
	if err != nil {
		return nil, err
	}
	return &structuredStrategy{names: names}, nil
}

func (s *structuredStrategy) Name() StrategyName { return StrategyStructured }

func (s *structuredStrategy) NameSpan(raw string) (string, bool) { return s.names.span(raw) }

// Extract reads rank and unit positionally. A delimiter inside a field value
// shifts every later field; that is accepted.
func (s *structuredStrategy) Extract(raw string) Fields {
	out := unknownFields()
	out.Name = s.names.extract(raw)

	fields := strings.Split(raw, fieldDelimiter)
	if len(fields) >= 4 {
		if rank := strings.TrimSpace(fields[3]); rank != "" {
			out.Rank = rank
		}
	}
	if len(fields) >= 5 {
		if unit := strings.TrimSpace(fields[4]); unit != "" {
			out.Unit = unit
		}
	}
	return out
}
