// Package migrations embeds the SQL schema migrations for the audit log.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
