package parser

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

var ErrInvalidRules = errors.New("invalid extraction rules")

// gershayim matches the abbreviation mark as it appears in the roster: CSV-escaped,
// plain ASCII, or the Hebrew punctuation character.
const gershayim = `(?:""|"|״)`

type MonthToken struct {
	Token string `yaml:"token"`
	Month int    `yaml:"month"`
}

// Rules is the locale data driving extraction. Month order is significant: the
// first entry whose date pattern matches a record wins.
type Rules struct {
	Months          []MonthToken `yaml:"months"`
	Honorific       string       `yaml:"honorific"`
	FellKeyword     string       `yaml:"fell_keyword"`
	LegacyRanks     []string     `yaml:"legacy_ranks"`
	StructuredRanks []string     `yaml:"structured_ranks"`
}

func DefaultRules() Rules {
	rules, err := ParseRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded rules.yaml: %v", err))
	}
	return rules
}

func ParseRules(blob []byte) (Rules, error) {
	var rules Rules
	if err := yaml.Unmarshal(blob, &rules); err != nil {
		return Rules{}, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

func LoadRulesFile(path string) (Rules, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read rules %s: %w", path, err)
	}
	return ParseRules(blob)
}

func (r Rules) Validate() error {
	if len(r.Months) == 0 {
		return fmt.Errorf("%w: month table is empty", ErrInvalidRules)
	}
	seen := map[string]struct{}{}
	for _, m := range r.Months {
		token := strings.TrimSpace(m.Token)
		if token == "" {
			return fmt.Errorf("%w: empty month token", ErrInvalidRules)
		}
		if m.Month < 0 || m.Month > 11 {
			return fmt.Errorf("%w: month %q has index %d outside 0..11", ErrInvalidRules, token, m.Month)
		}
		if _, dup := seen[token]; dup {
			return fmt.Errorf("%w: duplicate month token %q", ErrInvalidRules, token)
		}
		seen[token] = struct{}{}
	}
	if strings.TrimSpace(r.Honorific) == "" {
		return fmt.Errorf("%w: honorific is empty", ErrInvalidRules)
	}
	if strings.TrimSpace(r.FellKeyword) == "" {
		return fmt.Errorf("%w: fell keyword is empty", ErrInvalidRules)
	}
	if len(r.LegacyRanks) == 0 || len(r.StructuredRanks) == 0 {
		return fmt.Errorf("%w: rank enumerations must not be empty", ErrInvalidRules)
	}
	return nil
}

// expandGershayim turns a rule fragment into a regexp fragment. Fragments are
// regular expressions already; only the `"` placeholder is rewritten.
func expandGershayim(fragment string) string {
	return strings.ReplaceAll(fragment, `"`, gershayim)
}

func honorificPattern(honorific string) string {
	return expandGershayim(regexp.QuoteMeta(strings.TrimSpace(honorific)))
}

func rankAlternation(ranks []string) (string, error) {
	parts := make([]string, 0, len(ranks))
	for _, rank := range ranks {
		rank = strings.TrimSpace(rank)
		if rank == "" {
			continue
		}
		frag := expandGershayim(rank)
		if _, err := regexp.Compile(frag); err != nil {
			return "", fmt.Errorf("%w: rank pattern %q: %v", ErrInvalidRules, rank, err)
		}
		parts = append(parts, frag)
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: rank enumeration has no usable patterns", ErrInvalidRules)
	}
	return strings.Join(parts, "|"), nil
}
