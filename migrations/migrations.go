// Package migrations embeds the goose SQL migrations for the survey schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
