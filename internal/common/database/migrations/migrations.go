// Package migrations embeds the goose SQL migrations for the handle registry and the notification outbox.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
