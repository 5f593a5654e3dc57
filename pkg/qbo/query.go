package qbo

import (
	"fmt"
	"strings"
)

const maxPageSize = 1000

// Equals builds an exact-match filter for a query WHERE clause.
func Equals(field, value string) string {
	return fmt.Sprintf("%s = '%s'", field, escape(value))
}

// In builds an id-list filter. An empty list yields an empty string.
func In(field string, values []string) string {
	if len(values) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		quoted = append(quoted, "'"+escape(v)+"'")
	}
	return fmt.Sprintf("%s IN (%s)", field, strings.Join(quoted, ", "))
}

// And joins non-empty filters.
func And(filters ...string) string {
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		if strings.TrimSpace(f) != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " AND ")
}

func escape(value string) string {
	return strings.ReplaceAll(value, "'", `\'`)
}

func buildQuery(entity, where string, start, size int) string {
	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(entity)
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	fmt.Fprintf(&b, " STARTPOSITION %d MAXRESULTS %d", start, size)
	return b.String()
}
