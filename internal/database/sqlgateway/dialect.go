package sqlgateway

import (
	"context"
	"database/sql"
	"time"

	"github.com/kingkw1/stratum/migration"
)

// Dialect produces the ledger queries for a concrete database engine.
// The ledger schema is the same everywhere:
// version INTEGER PRIMARY KEY, applied_at TIMESTAMP NOT NULL.
type Dialect interface {
	CreateLedgerQuery() string
	DropLedgerQuery() string
	InsertQuery(v migration.Version, appliedAt time.Time) (string, []interface{})
	DeleteQuery(v migration.Version) (string, []interface{})
	ReadLedgerQuery() string
}

type locker interface {
	lock(ctx context.Context, conn *sql.Conn) error
	unlock(ctx context.Context, conn *sql.Conn) error
}

type nullLocker struct{}

func (nullLocker) lock(context.Context, *sql.Conn) error {
	return nil
}

func (nullLocker) unlock(context.Context, *sql.Conn) error {
	return nil
}
