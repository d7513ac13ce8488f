package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kingkw1/stratum/internal/logger"
	"github.com/kingkw1/stratum/migration"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePair(t *testing.T, dir, key, migrateSQL, rollbackSQL string) {
	t.Helper()

	err := os.WriteFile(filepath.Join(dir, key+migrateFileFullExtension), []byte(migrateSQL), 0o644)
	require.NoError(t, err)

	err = os.WriteFile(filepath.Join(dir, key+rollbackFileFullExtension), []byte(rollbackSQL), 0o644)
	require.NoError(t, err)
}

func Test_Select_ReadsPairsSortedNumerically(t *testing.T) {
	dir := t.TempDir()
	writePair(t, dir, "010_add_avatar", "ALTER TABLE users ADD COLUMN avatar TEXT;", "ALTER TABLE users DROP COLUMN avatar;")
	writePair(t, dir, "002_add_score", "ALTER TABLE users ADD COLUMN score INT DEFAULT 0;", "ALTER TABLE users DROP COLUMN score;")
	writePair(t, dir, "001_create_users", "CREATE TABLE users (id INT);", "DROP TABLE users;")

	lfs := NewLocalFolderSource(dir, &logger.NullLogger{})

	migrations, err := lfs.Select(context.Background())
	require.NoError(t, err)

	// "002" sorts before "010" because versions compare numerically
	assert.Equal(t, []string{"001_create_users", "002_add_score", "010_add_avatar"}, migrations.Keys())

	assert.Equal(t, []string{"CREATE TABLE users (id INT);"}, migrations[0].Migrate)
	assert.Equal(t, []string{"DROP TABLE users;"}, migrations[0].Rollback)
}

func Test_Select_RejectsMalformedFilenames(t *testing.T) {
	dir := t.TempDir()
	writePair(t, dir, "001_create_users", "CREATE TABLE users (id INT);", "DROP TABLE users;")

	err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("remember to add an index"), 0o644)
	require.NoError(t, err)

	lfs := NewLocalFolderSource(dir, &logger.NullLogger{})

	_, err = lfs.Select(context.Background())
	assert.True(t, errors.Is(err, ErrNotAMigrationFile))
}

func Test_Select_RejectsShortVersionPrefix(t *testing.T) {
	dir := t.TempDir()
	writePair(t, dir, "001_create_users", "CREATE TABLE users (id INT);", "DROP TABLE users;")

	err := os.WriteFile(filepath.Join(dir, "2_add_score.migrate.sql"), []byte("SELECT 1;"), 0o644)
	require.NoError(t, err)

	lfs := NewLocalFolderSource(dir, &logger.NullLogger{})

	_, err = lfs.Select(context.Background())
	assert.True(t, errors.Is(err, ErrNotAMigrationFile))
}

func Test_Select_RejectsMigrationWithoutRollbackFile(t *testing.T) {
	dir := t.TempDir()

	err := os.WriteFile(filepath.Join(dir, "001_create_users.migrate.sql"), []byte("CREATE TABLE users (id INT);"), 0o644)
	require.NoError(t, err)

	lfs := NewLocalFolderSource(dir, &logger.NullLogger{})

	_, err = lfs.Select(context.Background())
	assert.True(t, errors.Is(err, ErrIncompleteMigration))
}

func Test_Select_RejectsDuplicateVersions(t *testing.T) {
	dir := t.TempDir()
	writePair(t, dir, "003_add_score", "SELECT 1;", "SELECT 1;")
	writePair(t, dir, "003_add_avatar", "SELECT 1;", "SELECT 1;")

	lfs := NewLocalFolderSource(dir, &logger.NullLogger{})

	_, err := lfs.Select(context.Background())
	assert.True(t, errors.Is(err, ErrDuplicateVersion))
}

func Test_Select_EmptyFolderYieldsNoMigrations(t *testing.T) {
	lfs := NewLocalFolderSource(t.TempDir(), &logger.NullLogger{})

	migrations, err := lfs.Select(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, migrations)
}

func Test_Create_ScaffoldsTheNextVersion(t *testing.T) {
	dir := t.TempDir()
	writePair(t, dir, "001_create_users", "CREATE TABLE users (id INT);", "DROP TABLE users;")
	writePair(t, dir, "002_add_score", "SELECT 1;", "SELECT 1;")

	lfs := NewLocalFolderSource(dir, &logger.NullLogger{})

	m, err := lfs.Create("add avatar")
	require.NoError(t, err)

	assert.Equal(t, migration.Version(3), m.Version)
	assert.Equal(t, "003_add_avatar", m.Key())

	for _, filename := range []string{"003_add_avatar.migrate.sql", "003_add_avatar.rollback.sql"} {
		info, statErr := os.Stat(filepath.Join(dir, filename))
		require.NoError(t, statErr)
		assert.False(t, info.IsDir())
	}
}

func Test_Create_StartsAtVersionOne(t *testing.T) {
	lfs := NewLocalFolderSource(t.TempDir(), &logger.NullLogger{})

	m, err := lfs.Create("create users")
	require.NoError(t, err)
	assert.Equal(t, "001_create_users", m.Key())
}

func Test_IsValid(t *testing.T) {
	assert.True(t, NewLocalFolderSource(t.TempDir(), &logger.NullLogger{}).IsValid())
	assert.False(t, NewLocalFolderSource("./does-not-exist", &logger.NullLogger{}).IsValid())
}
