package database

import (
	"context"
	"fmt"
	"time"

	"github.com/kingkw1/stratum/internal/logger"
	"github.com/kingkw1/stratum/migration"
	"github.com/pkg/errors"
)

var ErrNothingToMigrate = errors.New("no changes to the database required")
var ErrVersionConflict = errors.New("ledger does not match migrations known to the source")
var ErrNotApplied = errors.New("downgrade target is not in the applied history")
var ErrLockContention = errors.New("another migration run holds the advisory lock")

const (
	DefaultLedgerTable = "schema_ledger"
	DefaultLockKey     = "stratum_migrations"
	DefaultLockTimeout = 3 * time.Second

	OperationUp   = "up"
	OperationDown = "down"
)

// Record is a single ledger row: an applied version and when it landed.
type Record struct {
	Version   migration.Version
	AppliedAt time.Time
}

// Plan bounds a single run. Target zero means "everything" for an
// upgrade and "all the way down" for a downgrade. Steps zero means
// unlimited.
type Plan struct {
	Target migration.Version
	Steps  int
}

// ExecutionError reports the version whose statement failed and
// carries the original database error.
type ExecutionError struct {
	Version migration.Version
	Script  string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("migration %s failed on [%s]: %v", e.Version, e.Script, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Gateway executes migrations against a concrete database and owns
// the ledger table and the advisory lock around each run.
type Gateway interface {
	SetLogger(logger.Logger)
	Up(ctx context.Context, migrations migration.Migrations, p Plan) (migration.Migrations, error)
	Down(ctx context.Context, migrations migration.Migrations, p Plan) (migration.Migrations, error)
	ReadLedger(ctx context.Context) ([]Record, error)
	CreateLedgerTable(ctx context.Context) error
	DropLedgerTable(ctx context.Context) error
	Close() error
}

// PlanUpgrade schedules pending migrations in ascending version order.
// The ledger must be a contiguous prefix of the source versions;
// forward application never skips gaps.
func PlanUpgrade(discovered migration.Migrations, applied []Record, p Plan) (migration.Migrations, error) {
	if err := checkLedgerIsPrefix(discovered, applied); err != nil {
		return nil, err
	}

	last := lastApplied(applied)

	var scheduled migration.Migrations
	for i := range discovered {
		if discovered[i].Version <= last {
			continue
		}

		if p.Target != 0 && discovered[i].Version > p.Target {
			break
		}

		if p.Steps != 0 && len(scheduled) >= p.Steps {
			break
		}

		scheduled = append(scheduled, discovered[i])
	}

	return scheduled, nil
}

// PlanDowngrade schedules applied migrations above the target in
// descending order. The target must be zero or a member of the
// applied history.
func PlanDowngrade(discovered migration.Migrations, applied []Record, p Plan) (migration.Migrations, error) {
	if err := checkLedgerIsPrefix(discovered, applied); err != nil {
		return nil, err
	}

	// a target below the whole applied history drains the ledger,
	// same as target zero
	if p.Target != 0 && !inRecords(applied, p.Target) {
		if len(applied) > 0 && p.Target >= applied[0].Version {
			return nil, errors.Wrapf(ErrNotApplied, "version %s", p.Target)
		}
	}

	byVersion := make(map[migration.Version]*migration.Migration, len(discovered))
	for i := range discovered {
		byVersion[discovered[i].Version] = discovered[i]
	}

	var scheduled migration.Migrations
	for i := len(applied) - 1; i >= 0; i-- {
		if applied[i].Version <= p.Target {
			break
		}

		if p.Steps != 0 && len(scheduled) >= p.Steps {
			break
		}

		m, ok := byVersion[applied[i].Version]
		if !ok {
			return nil, errors.Wrapf(
				ErrVersionConflict,
				"applied version %s has no source migration to roll back with",
				applied[i].Version,
			)
		}

		scheduled = append(scheduled, m)
	}

	return scheduled, nil
}

// checkLedgerIsPrefix verifies that applied versions form a contiguous
// prefix of the discovered sequence. Both inputs are expected sorted
// ascending, which sources and ledger reads guarantee.
func checkLedgerIsPrefix(discovered migration.Migrations, applied []Record) error {
	for i := range applied {
		if i >= len(discovered) {
			return errors.Wrapf(
				ErrVersionConflict,
				"ledger has version %s but the source only knows %d migrations",
				applied[i].Version, len(discovered),
			)
		}

		if discovered[i].Version != applied[i].Version {
			return errors.Wrapf(
				ErrVersionConflict,
				"ledger position %d holds version %s, source has %s",
				i, applied[i].Version, discovered[i].Version,
			)
		}
	}

	return nil
}

func lastApplied(applied []Record) migration.Version {
	if len(applied) == 0 {
		return 0
	}

	return applied[len(applied)-1].Version
}

func inRecords(records []Record, v migration.Version) bool {
	for i := range records {
		if records[i].Version == v {
			return true
		}
	}

	return false
}
