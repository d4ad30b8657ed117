// filepath: internal/repository/utils.go
package repository

import (
	"database/sql"
	"strings"
	"time"
)

// Layouts accepted when reading timestamps. Rows written by older versions
// use SQLite's own datetime format.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// formatTime renders t for storage. The zero time is stored as NULL.
func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

// parseTime reads a stored timestamp. NULL and unparseable values read as
// the zero time rather than failing the whole row.
func parseTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	v := strings.TrimSpace(s.String)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
