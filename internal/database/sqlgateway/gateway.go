package sqlgateway

import (
	"context"
	"database/sql"
	"time"

	"github.com/kingkw1/stratum/internal/database"
	"github.com/kingkw1/stratum/internal/logger"
	"github.com/kingkw1/stratum/migration"
	"github.com/pkg/errors"
)

// SQLGateway runs migrations over a single dedicated connection so
// that session scoped advisory locks stay valid for the whole run.
type SQLGateway struct {
	db      *sql.DB
	conn    *sql.Conn
	dialect Dialect
	locker  locker
	lg      logger.Logger
}

var _ database.Gateway = (*SQLGateway)(nil)

// Config carries the gateway knobs shared by all dialects.
type Config struct {
	LedgerTable string
	LockKey     string
	LockTimeout time.Duration
	NoWaitLock  bool
}

func (cfg Config) withDefaults() Config {
	if cfg.LedgerTable == "" {
		cfg.LedgerTable = database.DefaultLedgerTable
	}

	if cfg.LockKey == "" {
		cfg.LockKey = database.DefaultLockKey
	}

	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = database.DefaultLockTimeout
	}

	return cfg
}

func NewMySQL(db *sql.DB, cfg Config) *SQLGateway {
	cfg = cfg.withDefaults()

	return &SQLGateway{
		db:      db,
		dialect: mysqlDialect{ledgerTable: cfg.LedgerTable},
		locker:  newMySQLLocker(cfg.LockKey, cfg.LockTimeout, cfg.NoWaitLock),
		lg:      &logger.NullLogger{},
	}
}

func NewPostgres(db *sql.DB, cfg Config) *SQLGateway {
	cfg = cfg.withDefaults()

	return &SQLGateway{
		db:      db,
		dialect: postgresDialect{ledgerTable: cfg.LedgerTable},
		locker:  newPostgresLocker(cfg.LockKey, cfg.LockTimeout, cfg.NoWaitLock),
		lg:      &logger.NullLogger{},
	}
}

func NewSQLite(db *sql.DB, cfg Config) *SQLGateway {
	cfg = cfg.withDefaults()

	// sqlite is a single writer database, its own file lock is the
	// advisory lock
	return &SQLGateway{
		db:      db,
		dialect: sqliteDialect{ledgerTable: cfg.LedgerTable},
		locker:  nullLocker{},
		lg:      &logger.NullLogger{},
	}
}

func (g *SQLGateway) SetLogger(lg logger.Logger) {
	g.lg = lg
}

func (g *SQLGateway) Up(
	ctx context.Context,
	migrations migration.Migrations,
	p database.Plan,
) (migration.Migrations, error) {
	var applied migration.Migrations

	f := func(records []database.Record) error {
		scheduled, err := database.PlanUpgrade(migrations, records, p)
		if err != nil {
			return err
		}

		if len(scheduled) == 0 {
			return database.ErrNothingToMigrate
		}

		for i := range scheduled {
			if err := g.applyOne(ctx, scheduled[i]); err != nil {
				return err
			}

			g.lg.Successf("applied version %s: %s", scheduled[i].Version, scheduled[i].Name)
			applied = append(applied, scheduled[i])
		}

		return nil
	}

	if err := g.execUnderLock(ctx, database.OperationUp, f); err != nil {
		return applied, err
	}

	return applied, nil
}

func (g *SQLGateway) Down(
	ctx context.Context,
	migrations migration.Migrations,
	p database.Plan,
) (migration.Migrations, error) {
	var reverted migration.Migrations

	f := func(records []database.Record) error {
		scheduled, err := database.PlanDowngrade(migrations, records, p)
		if err != nil {
			return err
		}

		if len(scheduled) == 0 {
			return database.ErrNothingToMigrate
		}

		for i := range scheduled {
			g.lg.Debugf("reverting version %s: %s", scheduled[i].Version, scheduled[i].Name)

			if err := g.revertOne(ctx, scheduled[i]); err != nil {
				return err
			}

			g.lg.Successf("reverted version %s: %s", scheduled[i].Version, scheduled[i].Name)
			reverted = append(reverted, scheduled[i])
		}

		return nil
	}

	if err := g.execUnderLock(ctx, database.OperationDown, f); err != nil {
		return reverted, err
	}

	return reverted, nil
}

func (g *SQLGateway) ReadLedger(ctx context.Context) ([]database.Record, error) {
	if err := g.connect(ctx); err != nil {
		return nil, err
	}

	if err := g.CreateLedgerTable(ctx); err != nil {
		return nil, err
	}

	return g.readLedger(ctx)
}

func (g *SQLGateway) CreateLedgerTable(ctx context.Context) error {
	if err := g.connect(ctx); err != nil {
		return err
	}

	if _, err := g.conn.ExecContext(ctx, g.dialect.CreateLedgerQuery()); err != nil {
		return errors.Wrap(err, "could not create the ledger table")
	}

	return nil
}

func (g *SQLGateway) DropLedgerTable(ctx context.Context) error {
	if err := g.connect(ctx); err != nil {
		return err
	}

	if _, err := g.conn.ExecContext(ctx, g.dialect.DropLedgerQuery()); err != nil {
		return errors.Wrap(err, "could not drop the ledger table")
	}

	return nil
}

func (g *SQLGateway) Close() error {
	if g.conn == nil {
		return nil
	}

	err := g.conn.Close()
	g.conn = nil
	return err
}

func (g *SQLGateway) connect(ctx context.Context) error {
	if g.conn != nil {
		return nil
	}

	conn, err := g.db.Conn(ctx)
	if err != nil {
		return errors.Wrap(err, "could not obtain a dedicated connection")
	}

	g.conn = conn
	return nil
}

// execUnderLock acquires the advisory lock, reads the ledger, runs f
// and releases the lock on every exit path. Each migration commits in
// its own transaction inside f, there is no surrounding transaction.
func (g *SQLGateway) execUnderLock(
	ctx context.Context,
	operation string,
	f func([]database.Record) error,
) error {
	if err := g.connect(ctx); err != nil {
		return err
	}

	if err := g.locker.lock(ctx, g.conn); err != nil {
		return errors.Wrapf(err, "could not start [%s] operation", operation)
	}

	if err := g.CreateLedgerTable(ctx); err != nil {
		return g.handleError(ctx, err)
	}

	records, err := g.readLedger(ctx)
	if err != nil {
		return g.handleError(ctx, errors.Wrapf(err, "operation [%s] failed", operation))
	}

	if err := f(records); err != nil {
		if errors.Is(err, database.ErrNothingToMigrate) {
			return g.handleError(ctx, err)
		}

		return g.handleError(ctx, errors.Wrapf(err, "operation [%s] failed", operation))
	}

	return g.locker.unlock(ctx, g.conn)
}

// applyOne executes the forward statements and the ledger insert in a
// single transaction. On any failure the transaction rolls back and
// the ledger stays untouched.
func (g *SQLGateway) applyOne(ctx context.Context, m *migration.Migration) error {
	tx, err := g.conn.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return errors.Wrapf(err, "could not begin transaction for version %s", m.Version)
	}

	for _, script := range m.Migrate {
		g.lg.SQL(script)
		if _, err := tx.ExecContext(ctx, script); err != nil {
			return g.failOne(tx, m.Version, script, err)
		}
	}

	insertQuery, args := g.dialect.InsertQuery(m.Version, time.Now())
	g.lg.SQL(insertQuery, args...)

	if _, err := tx.ExecContext(ctx, insertQuery, args...); err != nil {
		return g.failOne(tx, m.Version, insertQuery, err)
	}

	if err := tx.Commit(); err != nil {
		return g.failOne(tx, m.Version, "COMMIT", err)
	}

	return nil
}

// revertOne mirrors applyOne: reverse statements plus ledger delete,
// one transaction.
func (g *SQLGateway) revertOne(ctx context.Context, m *migration.Migration) error {
	tx, err := g.conn.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return errors.Wrapf(err, "could not begin transaction for version %s", m.Version)
	}

	for _, script := range m.Rollback {
		g.lg.SQL(script)
		if _, err := tx.ExecContext(ctx, script); err != nil {
			return g.failOne(tx, m.Version, script, err)
		}
	}

	deleteQuery, args := g.dialect.DeleteQuery(m.Version)
	g.lg.SQL(deleteQuery, args...)

	if _, err := tx.ExecContext(ctx, deleteQuery, args...); err != nil {
		return g.failOne(tx, m.Version, deleteQuery, err)
	}

	if err := tx.Commit(); err != nil {
		return g.failOne(tx, m.Version, "COMMIT", err)
	}

	return nil
}

func (g *SQLGateway) failOne(tx *sql.Tx, v migration.Version, script string, err error) error {
	execErr := &database.ExecutionError{Version: v, Script: script, Err: err}

	if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
		return errors.Wrapf(execErr, "rollback failed as well: %s", rbErr.Error())
	}

	return execErr
}

func (g *SQLGateway) readLedger(ctx context.Context) ([]database.Record, error) {
	rows, err := g.conn.QueryContext(ctx, g.dialect.ReadLedgerQuery())
	if err != nil {
		return nil, errors.Wrap(err, "could not read the ledger")
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			g.lg.Error(closeErr)
		}
	}()

	var result []database.Record
	for rows.Next() {
		var version uint64
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return result, errors.Wrap(err, "could not scan a ledger row")
		}

		result = append(result, database.Record{
			Version:   migration.Version(version),
			AppliedAt: appliedAt,
		})
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, errors.Wrap(rowsErr, "ledger iteration failed")
	}

	return result, nil
}

func (g *SQLGateway) handleError(ctx context.Context, err error) error {
	result := err

	if unlockErr := g.locker.unlock(ctx, g.conn); unlockErr != nil {
		result = errors.Wrap(result, unlockErr.Error())
	}

	return result
}
