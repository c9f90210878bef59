package risk

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money renders d as a dollar amount with thousands separators, e.g. $15,150.00 or -$1,100.00.
func Money(d decimal.Decimal) string {
	d = d.Round(2)
	s := d.Abs().StringFixed(2)
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteString(frac)
	return b.String()
}

// Format renders errors and warnings as text blocks. Empty when there is nothing to report.
func (r Result) Format() string {
	var lines []string
	if len(r.Errors) > 0 {
		lines = append(lines, "SAFETY ERRORS:")
		for _, e := range r.Errors {
			lines = append(lines, "  - "+e)
		}
	}
	if len(r.Warnings) > 0 {
		lines = append(lines, "SAFETY WARNINGS:")
		for _, w := range r.Warnings {
			lines = append(lines, "  - "+w)
		}
	}
	return strings.Join(lines, "\n")
}
