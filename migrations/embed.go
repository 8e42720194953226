// Package migrations embeds the SQL schema applied by `anchorbadge serve --migrate`
// and by the Postgres integration tests.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
