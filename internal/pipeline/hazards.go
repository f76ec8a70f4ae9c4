package pipeline

import (
	"strings"

	"memorial/internal"
)

// tooltipHazardChars break naive HTML/attribute interpolation in the timeline.
const tooltipHazardChars = "\"'<>&\n\r\t"

type Hazard struct {
	Index  int
	Fields []internal.Field
}

// TooltipHazards lists records whose name, rank or unit needs escaping before
// it is placed in markup.
func TooltipHazards(records []internal.SoldierRecord) []Hazard {
	var out []Hazard
	for i, r := range records {
		var fields []internal.Field
		if strings.ContainsAny(r.Name, tooltipHazardChars) {
			fields = append(fields, internal.FieldName)
		}
		if strings.ContainsAny(r.Rank, tooltipHazardChars) {
			fields = append(fields, internal.FieldRank)
		}
		if strings.ContainsAny(r.Unit, tooltipHazardChars) {
			fields = append(fields, internal.FieldUnit)
		}
		if len(fields) > 0 {
			out = append(out, Hazard{Index: i, Fields: fields})
		}
	}
	return out
}
