package pipeline

import (
	"strings"

	"memorial/internal/parser"
	"memorial/internal/util"
)

type DetectResult struct {
	IsRoster bool
	Score    float64
	Reason   string
}

var detectKeywords = []string{"חללים", "נופלים", "רשימת", `ז"ל`, "נפל", "roster", "casualt", "fallen"}

// DetectRosterMail scores whether a mail carries a casualty roster.
func DetectRosterMail(subject, text, html string, attachmentNames []string) DetectResult {
	subject = strings.ToLower(util.NormalizeSpaces(subject))
	text = strings.ToLower(text)
	html = strings.ToLower(html)

	score := 0.0
	for _, kw := range detectKeywords {
		if strings.Contains(subject, kw) {
			score += 0.2
		}
		if strings.Contains(text, kw) || strings.Contains(html, kw) {
			score += 0.1
		}
	}

	boundaries := countBoundaryLines(text)
	if boundaries >= 2 {
		score += 0.4
	} else if boundaries == 1 {
		score += 0.2
	}

	for _, name := range attachmentNames {
		ln := strings.ToLower(name)
		if strings.HasSuffix(ln, ".csv") || strings.HasSuffix(ln, ".xlsx") || strings.HasSuffix(ln, ".html") || strings.HasSuffix(ln, ".htm") {
			score += 0.25
			break
		}
	}

	if strings.Contains(html, "<table") {
		score += 0.25
	}
	if score > 1 {
		score = 1
	}

	isRoster := score >= 0.45
	reason := "rules_negative"
	if isRoster {
		reason = "rules_positive"
	}

	return DetectResult{IsRoster: isRoster, Score: score, Reason: reason}
}

func countBoundaryLines(text string) int {
	count := 0
	for _, line := range strings.Split(text, "\n") {
		if parser.IsBoundary(strings.TrimSpace(line)) {
			count++
		}
	}
	return count
}
