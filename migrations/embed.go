// Package migrations embeds the SQL schema migrations for the keyword research service.
package migrations

import "embed"

// FS holds every *.up.sql and *.down.sql file in this directory.
//
//go:embed *.sql
var FS embed.FS
