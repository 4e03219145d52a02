// Package sqlnorm strips batch separators and database-switch directives
// from submitted SQL before it is stored or executed.
package sqlnorm

import "strings"

// Normalize drops empty lines and lines that are batch-separator or
// database-switch directives, preserving the casing and internal
// whitespace of surviving lines. It is idempotent: Normalize(Normalize(s))
// == Normalize(s).
func Normalize(sql string) string {
	lines := strings.Split(sql, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		upper := strings.ToUpper(trimmed)
		if upper == "GO" {
			continue
		}
		if strings.HasPrefix(upper, "USE ") {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
