package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

type monthPattern struct {
	month int
	re    *regexp.Regexp
}

// DateExtractor finds "<day> <month token> <year>" inside a record, trying the
// month table in declaration order.
type DateExtractor struct {
	patterns []monthPattern
}

func NewDateExtractor(months []MonthToken) (*DateExtractor, error) {
	if len(months) == 0 {
		return nil, fmt.Errorf("%w: month table is empty", ErrInvalidRules)
	}
	out := &DateExtractor{patterns: make([]monthPattern, 0, len(months))}
	for _, m := range months {
		re, err := regexp.Compile(`(\d{1,2}) ` + regexp.QuoteMeta(m.Token) + ` (\d{4})`)
		if err != nil {
			return nil, fmt.Errorf("%w: month %q: %v", ErrInvalidRules, m.Token, err)
		}
		out.patterns = append(out.patterns, monthPattern{month: m.Month, re: re})
	}
	return out, nil
}

// Extract returns the date, the matched substring, and whether any month
// matched. Day overflow is left to time.Date normalisation.
func (d *DateExtractor) Extract(raw string) (time.Time, string, bool) {
	for _, p := range d.patterns {
		m := p.re.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		day, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		year, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		return time.Date(year, time.Month(p.month+1), day, 0, 0, 0, 0, time.UTC), m[0], true
	}
	return time.Time{}, "", false
}
