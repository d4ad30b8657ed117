// filepath: internal/db/migrations/embed.go
// Package migrations holds the forward-only data and index migrations that
// run after the tables have been evolved to their current columns.
package migrations

import "embed"

// FS embeds all SQL migration files in this directory.
//
//go:embed *.sql
var FS embed.FS
