// Package migrations embeds the SQL schema for posts and the like boost ledger.
package migrations

import "embed"

// FS holds the embedded SQL migration files, applied in version order by
// golang-migrate at startup.
//
//go:embed *.sql
var FS embed.FS
