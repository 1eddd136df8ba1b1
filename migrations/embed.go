// Package migrations embeds the statesd SQL schema into the binary.
package migrations

import (
	"embed"

	"github.com/hovavo/pxt-states/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

// Source returns the embedded migrations.
func Source() database.Source {
	return database.Source{FS: files, Dir: "."}
}
