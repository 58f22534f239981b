package appfs

import "embed"

// FS embeds the DB migration files.
//go:embed migrations
var FS embed.FS
