package sqlgateway

import (
	"fmt"
	"time"

	"github.com/kingkw1/stratum/migration"
)

type sqliteDialect struct {
	ledgerTable string
}

var _ Dialect = (*sqliteDialect)(nil)

func (d sqliteDialect) CreateLedgerQuery() string {
	const createSQL = `
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL
		);
	`

	return fmt.Sprintf(createSQL, d.ledgerTable)
}

func (d sqliteDialect) DropLedgerQuery() string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;", d.ledgerTable)
}

func (d sqliteDialect) InsertQuery(v migration.Version, appliedAt time.Time) (string, []interface{}) {
	q := fmt.Sprintf("INSERT INTO %s (version, applied_at) VALUES (?, ?);", d.ledgerTable)
	return q, []interface{}{uint64(v), appliedAt}
}

func (d sqliteDialect) DeleteQuery(v migration.Version) (string, []interface{}) {
	q := fmt.Sprintf("DELETE FROM %s WHERE version = ?;", d.ledgerTable)
	return q, []interface{}{uint64(v)}
}

func (d sqliteDialect) ReadLedgerQuery() string {
	return fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version ASC;", d.ledgerTable)
}
