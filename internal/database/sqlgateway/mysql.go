package sqlgateway

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kingkw1/stratum/internal/database"
	"github.com/kingkw1/stratum/migration"
	"github.com/pkg/errors"
)

type mysqlDialect struct {
	ledgerTable string
}

var _ Dialect = (*mysqlDialect)(nil)

func (d mysqlDialect) CreateLedgerQuery() string {
	const createSQL = `
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL
		) ENGINE=InnoDB
	`

	return fmt.Sprintf(createSQL, d.ledgerTable)
}

func (d mysqlDialect) DropLedgerQuery() string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;", d.ledgerTable)
}

func (d mysqlDialect) InsertQuery(v migration.Version, appliedAt time.Time) (string, []interface{}) {
	q := fmt.Sprintf("INSERT INTO %s (`version`, `applied_at`) VALUES (?, ?);", d.ledgerTable)
	return q, []interface{}{uint64(v), appliedAt}
}

func (d mysqlDialect) DeleteQuery(v migration.Version) (string, []interface{}) {
	q := fmt.Sprintf("DELETE FROM %s WHERE `version` = ?;", d.ledgerTable)
	return q, []interface{}{uint64(v)}
}

func (d mysqlDialect) ReadLedgerQuery() string {
	return fmt.Sprintf("SELECT `version`, `applied_at` FROM %s ORDER BY `version` ASC;", d.ledgerTable)
}

// mysqlLocker takes a named server wide lock with GET_LOCK. The lock
// is tied to the session, which is why the gateway pins a connection.
type mysqlLocker struct {
	key     string
	timeout time.Duration
	noWait  bool
}

func newMySQLLocker(key string, timeout time.Duration, noWait bool) *mysqlLocker {
	return &mysqlLocker{key: key, timeout: timeout, noWait: noWait}
}

func (l *mysqlLocker) lock(ctx context.Context, conn *sql.Conn) error {
	waitSeconds := int(l.timeout.Seconds())
	if l.noWait {
		waitSeconds = 0
	}

	var acquired sql.NullInt64
	row := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", l.key, waitSeconds)
	if err := row.Scan(&acquired); err != nil {
		return errors.Wrapf(err, "could not obtain [%s] MySQL advisory lock", l.key)
	}

	if !acquired.Valid || acquired.Int64 != 1 {
		return errors.Wrapf(database.ErrLockContention, "MySQL lock [%s]", l.key)
	}

	return nil
}

func (l *mysqlLocker) unlock(ctx context.Context, conn *sql.Conn) error {
	if _, err := conn.ExecContext(ctx, "SELECT RELEASE_LOCK(?)", l.key); err != nil {
		return errors.Wrapf(err, "could not release [%s] MySQL advisory lock", l.key)
	}

	return nil
}
