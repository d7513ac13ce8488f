package sqlgateway

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/kingkw1/stratum/internal/database"
	"github.com/kingkw1/stratum/internal/retry"
	"github.com/kingkw1/stratum/migration"
	"github.com/pkg/errors"
)

type postgresDialect struct {
	ledgerTable string
}

var _ Dialect = (*postgresDialect)(nil)

func (d postgresDialect) CreateLedgerQuery() string {
	const createSQL = `
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL
		)
	`

	return fmt.Sprintf(createSQL, d.ledgerTable)
}

func (d postgresDialect) DropLedgerQuery() string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;", d.ledgerTable)
}

func (d postgresDialect) InsertQuery(v migration.Version, appliedAt time.Time) (string, []interface{}) {
	q := fmt.Sprintf("INSERT INTO %s (version, applied_at) VALUES ($1, $2);", d.ledgerTable)
	return q, []interface{}{uint64(v), appliedAt}
}

func (d postgresDialect) DeleteQuery(v migration.Version) (string, []interface{}) {
	q := fmt.Sprintf("DELETE FROM %s WHERE version = $1;", d.ledgerTable)
	return q, []interface{}{uint64(v)}
}

func (d postgresDialect) ReadLedgerQuery() string {
	return fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version ASC;", d.ledgerTable)
}

const postgresLockRetryStep = 100 * time.Millisecond

// postgresLocker uses session level advisory locks. The string lock
// key is hashed to the int64 pg_advisory_lock expects.
type postgresLocker struct {
	key     int64
	timeout time.Duration
	noWait  bool
}

func newPostgresLocker(key string, timeout time.Duration, noWait bool) *postgresLocker {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))

	return &postgresLocker{
		key:     int64(h.Sum64()),
		timeout: timeout,
		noWait:  noWait,
	}
}

func (l *postgresLocker) lock(ctx context.Context, conn *sql.Conn) error {
	if l.noWait {
		return l.try(ctx, conn)
	}

	attempts := int(l.timeout / postgresLockRetryStep)
	if attempts < 1 {
		attempts = 1
	}

	err := retry.Incremental(ctx, postgresLockRetryStep, attempts, func(attempt int) error {
		if tryErr := l.try(ctx, conn); tryErr != nil {
			if errors.Is(tryErr, database.ErrLockContention) {
				return retry.Error(tryErr, attempt)
			}

			return tryErr
		}

		return nil
	})

	if errors.Is(err, retry.ErrTooManyAttempts) {
		return errors.Wrapf(database.ErrLockContention, "gave up after %s", l.timeout)
	}

	return err
}

func (l *postgresLocker) try(ctx context.Context, conn *sql.Conn) error {
	var acquired sql.NullBool
	row := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.key)
	if err := row.Scan(&acquired); err != nil {
		return errors.Wrapf(err, "could not obtain [%d] Postgres advisory lock", l.key)
	}

	if !acquired.Valid || !acquired.Bool {
		return errors.Wrapf(database.ErrLockContention, "Postgres lock [%d]", l.key)
	}

	return nil
}

func (l *postgresLocker) unlock(ctx context.Context, conn *sql.Conn) error {
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.key); err != nil {
		return errors.Wrapf(err, "could not release [%d] Postgres advisory lock", l.key)
	}

	return nil
}
