// Package migrations embeds the request store schema.
package migrations

import "embed"

// FS holds numbered up/down migrations at its root.
//
//go:embed *.sql
var FS embed.FS
