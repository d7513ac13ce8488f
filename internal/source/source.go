package source

import (
	"context"

	"github.com/kingkw1/stratum/migration"
	"github.com/pkg/errors"
)

var ErrNotAMigrationFile = errors.New("not a migration file")
var ErrIncompleteMigration = errors.New("migration is missing its migrate or rollback file")
var ErrDuplicateVersion = errors.New("duplicate migration version")
var ErrNoMigrations = errors.New("no migrations")

// Selector yields every known migration sorted ascending by version.
type Selector interface {
	Select(ctx context.Context) (migration.Migrations, error)
}

// Source is a selector that can also scaffold new migrations,
// the local folder source implements it, the registry does not.
type Source interface {
	Selector

	IsValid() bool
	Create(name string) (*migration.Migration, error)
}

// validateUnique rejects two migrations claiming the same version.
// Expects m sorted ascending.
func validateUnique(m migration.Migrations) error {
	for i := 1; i < len(m); i++ {
		if m[i].Version == m[i-1].Version {
			return errors.Wrapf(
				ErrDuplicateVersion,
				"version %s is claimed by both [%s] and [%s]",
				m[i].Version, m[i-1].Key(), m[i].Key(),
			)
		}
	}

	return nil
}
