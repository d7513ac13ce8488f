package stratum

import (
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/kingkw1/stratum/internal/database"
	"github.com/kingkw1/stratum/internal/database/sqlgateway"
	"github.com/kingkw1/stratum/internal/logger"
	"github.com/kingkw1/stratum/internal/source"
	"github.com/kingkw1/stratum/migration"
	"github.com/pkg/errors"
)

var ErrNilDB = errors.New("database handle is nil")

type OptionFunc func(*Runner) error

type (
	gatewayConfig   = sqlgateway.Config
	gatewayFactory  func(cfg gatewayConfig) database.Gateway
	selectorFactory func(lg logger.Logger) (source.Selector, error)
)

// UseMySQL runs migrations against MySQL, guarded by a GET_LOCK
// advisory lock.
func UseMySQL(db *sqlx.DB) OptionFunc {
	return func(r *Runner) error {
		if db == nil {
			return ErrNilDB
		}

		r.gatewayFactory = func(cfg gatewayConfig) database.Gateway {
			return sqlgateway.NewMySQL(db.DB, cfg)
		}

		return nil
	}
}

// UsePostgres runs migrations against Postgres, guarded by a
// pg_advisory_lock.
func UsePostgres(db *sqlx.DB) OptionFunc {
	return func(r *Runner) error {
		if db == nil {
			return ErrNilDB
		}

		r.gatewayFactory = func(cfg gatewayConfig) database.Gateway {
			return sqlgateway.NewPostgres(db.DB, cfg)
		}

		return nil
	}
}

// UseSQLite runs migrations against SQLite. The database file itself
// is the lock.
func UseSQLite(db *sqlx.DB) OptionFunc {
	return func(r *Runner) error {
		if db == nil {
			return ErrNilDB
		}

		r.gatewayFactory = func(cfg gatewayConfig) database.Gateway {
			return sqlgateway.NewSQLite(db.DB, cfg)
		}

		return nil
	}
}

// UseLocalFolderSource discovers migrations from folder, named
// {3 digit version}_{description}.migrate.sql / .rollback.sql.
func UseLocalFolderSource(folder string) OptionFunc {
	return func(r *Runner) error {
		// built in NewRunner so the source sees the final logger
		r.selectorFactory = func(lg logger.Logger) (source.Selector, error) {
			return source.NewLocalFolderSource(folder, lg), nil
		}

		return nil
	}
}

// UseRegistrySource takes migrations registered in code instead of
// discovering files; the set is validated for duplicate versions
// before anything executes.
func UseRegistrySource(factories ...migration.Factory) OptionFunc {
	return func(r *Runner) error {
		r.selectorFactory = func(logger.Logger) (source.Selector, error) {
			return source.NewRegistrySource(factories...)
		}

		return nil
	}
}

// UseColorLogger makes the runner report its progress to p, optionally
// echoing SQL and debug output.
func UseColorLogger(p logger.Printer, printSQL, printDebug bool) OptionFunc {
	return func(r *Runner) error {
		r.lg = logger.NewColorLogger(p, printSQL, printDebug)
		return nil
	}
}

// UseLedgerTable overrides the default ledger table name.
func UseLedgerTable(name string) OptionFunc {
	return func(r *Runner) error {
		r.gatewayCfg.LedgerTable = name
		return nil
	}
}

// UseLockKey overrides the advisory lock name shared by concurrent
// runner invocations.
func UseLockKey(key string) OptionFunc {
	return func(r *Runner) error {
		r.gatewayCfg.LockKey = key
		return nil
	}
}

// UseLockTimeout bounds how long a run waits for the advisory lock.
func UseLockTimeout(d time.Duration) OptionFunc {
	return func(r *Runner) error {
		r.gatewayCfg.LockTimeout = d
		return nil
	}
}

// UseNoWaitLock makes a run fail fast with ErrLockContention instead
// of waiting for a concurrent run to finish.
func UseNoWaitLock() OptionFunc {
	return func(r *Runner) error {
		r.gatewayCfg.NoWaitLock = true
		return nil
	}
}
