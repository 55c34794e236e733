// Package migrations embeds the SQL migration files so the server binary
// can apply them at startup without shipping the files separately.
package migrations

import "embed"

// FS holds the embedded SQL migrations, applied in lexical order by goose.
//
//go:embed *.sql
var FS embed.FS
