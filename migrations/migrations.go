// Package migrations embeds the versioned schema scripts of the product store.
// Files follow the {version}_{title}.{up|down}.sql naming used by golang-migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
