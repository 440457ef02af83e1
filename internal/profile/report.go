package profile

import (
	"fmt"
	"strings"
)

// Render returns the profile as a fixed-width text report.
func (p Profile) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "rows scanned: %d\n", p.Rows)
	fmt.Fprintf(&b, "%-28s %-11s %8s %9s %9s %8s\n",
		"column", "kind", "missing", "coerce", "distinct", "capped")
	b.WriteString(strings.Repeat("-", 78))
	b.WriteByte('\n')
	for _, c := range p.Columns {
		capped := ""
		if c.Capped {
			capped = "yes"
		}
		kind := c.Kind.String()
		if c.Layout != "" {
			kind = kind + "*"
		}
		fmt.Fprintf(&b, "%-28s %-11s %7.1f%% %8.2f %9d %8s\n",
			c.Name, kind, c.MissingRatio*100, c.CoercionRate, c.Distinct, capped)
	}
	return b.String()
}
