// Package migrations contains the embedded schema migrations for the local store.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
