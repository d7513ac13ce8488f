package migration

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var ErrInvalidVersion = errors.New("invalid migration version")
var ErrInvalidName = errors.New("invalid migration name")

// VersionDigits is the width of the zero padded version prefix
// in migration keys and filenames.
const VersionDigits = 3

type (
	// Version is an ordinal migration version. Versions are compared
	// numerically, never lexically, so "002" sorts before "010".
	Version uint64

	Migration struct {
		Version  Version
		Name     string
		Migrate  []string
		Rollback []string
	}

	Factory func() (*Migration, error)
)

func New(version Version, name string, migrate, rollback []string) Factory {
	return func() (*Migration, error) {
		if version == 0 {
			return nil, errors.Wrap(ErrInvalidVersion, "version must be greater than zero")
		}

		if strings.TrimSpace(name) == "" {
			return nil, errors.Wrapf(ErrInvalidName, "version %s", version)
		}

		return &Migration{
			Version:  version,
			Name:     name,
			Migrate:  migrate,
			Rollback: rollback,
		}, nil
	}
}

// ParseVersion converts the numeric prefix of a migration key
// into a Version. An empty or non numeric input is an error.
func ParseVersion(s string) (Version, error) {
	if s == "" {
		return 0, errors.Wrap(ErrInvalidVersion, "empty version")
	}

	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidVersion, "%s", s)
	}

	if n == 0 {
		return 0, errors.Wrapf(ErrInvalidVersion, "%s", s)
	}

	return Version(n), nil
}

// String formats the version zero padded, e.g. 3 becomes "003".
func (v Version) String() string {
	return fmt.Sprintf("%0*d", VersionDigits, uint64(v))
}

func (m *Migration) Key() string {
	return CreateKey(m.Version, m.Name)
}

// MigrateScripts joins the forward statements into a single
// semicolon terminated script, mostly for display purposes.
func (m *Migration) MigrateScripts() string {
	return joinScripts(m.Migrate)
}

func (m *Migration) RollbackScripts() string {
	return joinScripts(m.Rollback)
}

func joinScripts(scripts []string) string {
	var buf bytes.Buffer

	for i := range scripts {
		buf.WriteString(scripts[i])

		if !strings.HasSuffix(scripts[i], ";") {
			buf.WriteString(";")
		}

		if i < len(scripts)-1 {
			buf.WriteString("\n")
		}
	}

	return buf.String()
}

type Migrations []*Migration

func NewMigrations(factories ...Factory) (Migrations, error) {
	migrations := make(Migrations, len(factories))

	for i := range factories {
		m, err := factories[i]()
		if err != nil {
			return nil, err
		}

		migrations[i] = m
	}

	return migrations, nil
}

func (m Migrations) Keys() (result []string) {
	for i := range m {
		result = append(result, m[i].Key())
	}
	return result
}

func (m Migrations) Len() int {
	return len(m)
}

func (m Migrations) Less(i, j int) bool {
	return m[i].Version < m[j].Version
}

func (m Migrations) Swap(i, j int) {
	m[i], m[j] = m[j], m[i]
}

func CreateKey(version Version, name string) string {
	var result bytes.Buffer
	result.WriteString(version.String())
	result.WriteString("_")
	result.WriteString(strings.Replace(strings.ToLower(name), " ", "_", -1))
	return result.String()
}
