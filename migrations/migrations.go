// Package migrations embeds the versioned SQL schema so the binary can migrate
// from any working directory.
package migrations

import "embed"

// FS holds every NNN_name.sql file in this directory.
//
//go:embed *.sql
var FS embed.FS
