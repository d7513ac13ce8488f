package migration

import (
	"sort"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func Test_ParseVersion(t *testing.T) {
	tt := []struct {
		input   string
		version Version
		valid   bool
	}{
		{"001", 1, true},
		{"002", 2, true},
		{"010", 10, true},
		{"120", 120, true},
		{"", 0, false},
		{"000", 0, false},
		{"abc", 0, false},
		{"01a", 0, false},
	}

	for _, tc := range tt {
		t.Run(tc.input, func(t *testing.T) {
			v, err := ParseVersion(tc.input)
			if tc.valid {
				assert.NoError(t, err)
				assert.Equal(t, tc.version, v)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidVersion))
			}
		})
	}
}

func Test_VersionIsZeroPadded(t *testing.T) {
	assert.Equal(t, "003", Version(3).String())
	assert.Equal(t, "042", Version(42).String())
	assert.Equal(t, "120", Version(120).String())
	assert.Equal(t, "1200", Version(1200).String())
}

func Test_CreateKey(t *testing.T) {
	assert.Equal(t, "001_add_score_column", CreateKey(1, "Add score column"))
	assert.Equal(t, "010_create_users", CreateKey(10, "create_users"))
}

func Test_MigrationsSortNumerically(t *testing.T) {
	migrations, err := NewMigrations(
		New(10, "ten", nil, nil),
		New(2, "two", nil, nil),
		New(1, "one", nil, nil),
	)

	assert.NoError(t, err)

	sort.Sort(migrations)

	assert.Equal(t, []string{"001_one", "002_two", "010_ten"}, migrations.Keys())
}

func Test_FactoryRejectsInvalidInput(t *testing.T) {
	_, err := New(0, "no version", nil, nil)()
	assert.True(t, errors.Is(err, ErrInvalidVersion))

	_, err = New(1, "  ", nil, nil)()
	assert.True(t, errors.Is(err, ErrInvalidName))
}

func Test_ScriptsAreJoinedWithSemicolons(t *testing.T) {
	m := &Migration{
		Version: 1,
		Name:    "create foo",
		Migrate: []string{"CREATE TABLE foo (id INT)", "CREATE INDEX foo_id ON foo (id);"},
	}

	assert.Equal(t, "CREATE TABLE foo (id INT);\nCREATE INDEX foo_id ON foo (id);", m.MigrateScripts())
	assert.Equal(t, "", m.RollbackScripts())
}
