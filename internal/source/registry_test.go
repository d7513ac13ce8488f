package source

import (
	"context"
	"testing"

	"github.com/kingkw1/stratum/migration"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Registry_ServesMigrationsSorted(t *testing.T) {
	s, err := NewRegistrySource(
		migration.New(2, "add score", []string{"ALTER TABLE users ADD COLUMN score INT DEFAULT 0;"}, nil),
		migration.New(1, "create users", []string{"CREATE TABLE users (id INT);"}, nil),
	)
	require.NoError(t, err)

	migrations, err := s.Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"001_create_users", "002_add_score"}, migrations.Keys())
}

func Test_Registry_RejectsDuplicateVersionsBeforeAnythingRuns(t *testing.T) {
	_, err := NewRegistrySource(
		migration.New(3, "add score", []string{"SELECT 1;"}, nil),
		migration.New(3, "add avatar", []string{"SELECT 1;"}, nil),
	)
	assert.True(t, errors.Is(err, ErrDuplicateVersion))
}

func Test_Registry_RejectsInvalidFactories(t *testing.T) {
	_, err := NewRegistrySource(
		migration.New(0, "no version", []string{"SELECT 1;"}, nil),
	)
	assert.True(t, errors.Is(err, migration.ErrInvalidVersion))
}

func Test_Registry_EmptyRegistryIsAnError(t *testing.T) {
	s, err := NewRegistrySource()
	require.NoError(t, err)

	_, err = s.Select(context.Background())
	assert.True(t, errors.Is(err, ErrNoMigrations))
}
