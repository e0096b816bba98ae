// Package migrations embeds SQL migration files into the binary.
//
// Import it for its side effect: the init function registers the embedded
// files with the database package.
package migrations

import (
	"embed"

	"github.com/nerrad567/newsdesk/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.Register(migrationsFS, ".")
}
