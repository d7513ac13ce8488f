package source

import (
	"context"
	"sort"

	"github.com/kingkw1/stratum/migration"
)

// RegistrySource serves migrations registered in code. The whole set
// is built and validated once, before anything executes, so a
// duplicate version is caught at startup rather than mid-run.
type RegistrySource struct {
	migrations migration.Migrations
}

var _ Selector = (*RegistrySource)(nil)

func NewRegistrySource(factories ...migration.Factory) (*RegistrySource, error) {
	m, err := migration.NewMigrations(factories...)
	if err != nil {
		return nil, err
	}

	sort.Sort(m)

	if err := validateUnique(m); err != nil {
		return nil, err
	}

	return &RegistrySource{migrations: m}, nil
}

func (r *RegistrySource) Select(ctx context.Context) (migration.Migrations, error) {
	if len(r.migrations) == 0 {
		return nil, ErrNoMigrations
	}

	return r.migrations, nil
}
