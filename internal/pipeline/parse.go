package pipeline

import (
	"fmt"
	"strings"

	"memorial/internal/config"
	"memorial/internal/input"
	"memorial/internal/parser"
)

// NewParser builds the roster parser described by cfg. A non-empty strategy
// overrides PARSE_STRATEGY.
func NewParser(cfg config.Config, strategy string) (*parser.Parser, error) {
	rules := parser.DefaultRules()
	if strings.TrimSpace(cfg.RulesPath) != "" {
		loaded, err := parser.LoadRulesFile(cfg.RulesPath)
		if err != nil {
			return nil, err
		}
		rules = loaded
	}

	name := cfg.ParseStrategy
	if strings.TrimSpace(strategy) != "" {
		name = strategy
	}
	sn, err := parser.ParseStrategyName(name)
	if err != nil {
		return nil, err
	}
	return parser.New(rules, sn,
		parser.WithSnippetRunes(cfg.DiagSnippetRunes),
		parser.WithUnescapeQuotes(cfg.ParseUnescapeQuotes),
	)
}

// ParseFile loads a roster in any supported format and parses it without
// touching the database.
func ParseFile(p *parser.Parser, path, encoding string) (input.Document, parser.Result, error) {
	enc, err := input.ParseEncoding(encoding)
	if err != nil {
		return input.Document{}, parser.Result{}, err
	}
	doc, err := input.Load(path, enc)
	if err != nil {
		return input.Document{}, parser.Result{}, err
	}
	return doc, p.Parse(doc.Text), nil
}

// FindInFile returns the reassembled record with the given id.
func FindInFile(path, encoding, id string) (string, error) {
	enc, err := input.ParseEncoding(encoding)
	if err != nil {
		return "", err
	}
	doc, err := input.Load(path, enc)
	if err != nil {
		return "", err
	}
	raw, ok := parser.FindRecord(doc.Text, id)
	if !ok {
		return "", fmt.Errorf("record %s not found in %s", id, path)
	}
	return raw, nil
}
