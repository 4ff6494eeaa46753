// Package migrations holds the embedded sqlite schema migrations.
package migrations

import "embed"

// FS contains every *.sql migration, applied in file name order.
//
//go:embed *.sql
var FS embed.FS
