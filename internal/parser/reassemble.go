package parser

import (
	"regexp"
	"strings"
	"unicode"
)

// boundaryRE marks the first physical line of a logical record: the quoted
// "<ingest timestamp>-<sequence>" id in field 0.
var boundaryRE = regexp.MustCompile(`^"\d+-\d+"`)

// Reassembler rebuilds logical records from physical lines. A record is only
// released once the next boundary line arrives or Flush is called.
type Reassembler struct {
	current string
}

// Feed consumes one physical line (header already skipped) and returns the
// previous record when this line opens a new one.
func (r *Reassembler) Feed(line string) (string, bool) {
	line = trimLine(line)
	if line == "" {
		return "", false
	}
	if IsBoundary(line) {
		prev := r.current
		r.current = line
		return prev, prev != ""
	}
	r.current += " " + line
	return "", false
}

func (r *Reassembler) Flush() (string, bool) {
	prev := r.current
	r.current = ""
	return prev, prev != ""
}

func IsBoundary(line string) bool {
	return boundaryRE.MatchString(line)
}

// Reassemble splits text into RawRecords in input order. Line 0 is the header.
func Reassemble(text string) []string {
	var out []string
	eachRecord(text, func(raw string) { out = append(out, raw) })
	return out
}

func eachRecord(text string, fn func(raw string)) {
	lines := strings.Split(text, "\n")
	var r Reassembler
	for i := 1; i < len(lines); i++ {
		if raw, ok := r.Feed(lines[i]); ok {
			fn(raw)
		}
	}
	if raw, ok := r.Flush(); ok {
		fn(raw)
	}
}

func trimLine(line string) string {
	return strings.TrimFunc(line, func(r rune) bool {
		return unicode.IsSpace(r) || r == '\uFEFF'
	})
}
