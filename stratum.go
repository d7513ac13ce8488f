// Package stratum is a schema migration runner. It discovers ordered
// migration units from a folder or an in-code registry, applies or
// reverts them against a relational database and tracks applied state
// in a ledger table, one transaction per unit, under an advisory lock.
package stratum

import (
	"context"

	"github.com/kingkw1/stratum/internal/database"
	"github.com/kingkw1/stratum/internal/logger"
	"github.com/kingkw1/stratum/internal/source"
	"github.com/kingkw1/stratum/migration"
	"github.com/pkg/errors"
)

var ErrGatewayNotInitialized = errors.New("database gateway has not been initialized")

// ErrNothingToMigrate is returned when a run resolves to an empty
// plan. Re-running an already applied history is not a failure, the
// CLI reports it as success.
var ErrNothingToMigrate = database.ErrNothingToMigrate

// ErrVersionConflict means the ledger is not a contiguous prefix of
// the migrations the source knows about.
var ErrVersionConflict = database.ErrVersionConflict

// ErrNotApplied means a downgrade target is not part of the applied
// history.
var ErrNotApplied = database.ErrNotApplied

// ErrLockContention means a concurrent runner holds the advisory lock.
var ErrLockContention = database.ErrLockContention

type CloserFunc func() error

// Status reports applied ledger rows and pending migration keys.
type Status struct {
	Applied []database.Record
	Pending []string
}

// Runner plans and executes migrations. Construct it with NewRunner
// and the Use* option functions.
type Runner struct {
	lg              logger.Logger
	selector        source.Selector
	selectorFactory selectorFactory
	gateway         database.Gateway
	gatewayFactory  gatewayFactory
	gatewayCfg      gatewayConfig
}

// NewRunner creates a runner from option callbacks. A database option
// (UseMySQL, UsePostgres or UseSQLite) is mandatory; without a source
// option the local ./migrations folder is used.
func NewRunner(opts ...OptionFunc) (*Runner, CloserFunc, error) {
	r := new(Runner)
	r.lg = &logger.NullLogger{}

	for _, oFunc := range opts {
		if err := oFunc(r); err != nil {
			return nil, nil, err
		}
	}

	if r.gatewayFactory == nil {
		return nil, nil, ErrGatewayNotInitialized
	}

	r.gateway = r.gatewayFactory(r.gatewayCfg)
	r.gateway.SetLogger(r.lg)

	if r.selectorFactory == nil {
		r.selector = source.NewLocalFolderSource(source.DefaultMigrationsFolder, r.lg)
	} else {
		selector, err := r.selectorFactory(r.lg)
		if err != nil {
			if gatewayErr := r.gateway.Close(); gatewayErr != nil {
				return nil, nil, errors.Wrap(err, gatewayErr.Error())
			}

			return nil, nil, err
		}

		r.selector = selector
	}

	return r, r.close, nil
}

// Up applies every pending migration in ascending version order, each
// in its own transaction, stopping at the first failure. Returns the
// keys of the migrations that were committed.
func (r *Runner) Up(ctx context.Context, cfs ...ActionConfigurator) ([]string, error) {
	act := new(action)
	for _, f := range cfs {
		f(act)
	}

	migrations, err := r.selector.Select(ctx)
	if err != nil {
		r.lg.Error(err)
		return nil, err
	}

	p := database.Plan{Target: act.target, Steps: act.steps}
	applied, err := r.gateway.Up(ctx, migrations, p)
	if err != nil {
		if !errors.Is(err, database.ErrNothingToMigrate) {
			r.lg.Error(err)
		}

		return applied.Keys(), err
	}

	return applied.Keys(), nil
}

// Down reverts applied migrations above the target version in
// descending order. A zero target drains the whole ledger.
func (r *Runner) Down(ctx context.Context, cfs ...ActionConfigurator) ([]string, error) {
	act := new(action)
	for _, f := range cfs {
		f(act)
	}

	migrations, err := r.selector.Select(ctx)
	if err != nil {
		r.lg.Error(err)
		return nil, err
	}

	p := database.Plan{Target: act.target, Steps: act.steps}
	reverted, err := r.gateway.Down(ctx, migrations, p)
	if err != nil {
		if !errors.Is(err, database.ErrNothingToMigrate) {
			r.lg.Error(err)
		}

		return reverted.Keys(), err
	}

	return reverted.Keys(), nil
}

// Status lists applied versions with their timestamps and the keys
// still pending, without changing anything beyond creating the ledger
// table when it does not exist yet.
func (r *Runner) Status(ctx context.Context) (*Status, error) {
	migrations, err := r.selector.Select(ctx)
	if err != nil {
		r.lg.Error(err)
		return nil, err
	}

	records, err := r.gateway.ReadLedger(ctx)
	if err != nil {
		r.lg.Error(err)
		return nil, err
	}

	pending, err := database.PlanUpgrade(migrations, records, database.Plan{})
	if err != nil {
		r.lg.Error(err)
		return nil, err
	}

	return &Status{Applied: records, Pending: pending.Keys()}, nil
}

// Source returns the runner's selector when it is a full source,
// which the CLI needs for scaffolding new migrations.
func (r *Runner) Source() source.Source {
	if s, ok := r.selector.(source.Source); ok {
		return s
	}

	return nil
}

func (r *Runner) close() error {
	if r.gateway == nil {
		return ErrGatewayNotInitialized
	}

	if err := r.gateway.Close(); err != nil {
		r.lg.Error(err)
		return err
	}

	return nil
}

// NewMigration registers an in-code migration for UseRegistrySource.
func NewMigration(version migration.Version, name string, migrate, rollback []string) migration.Factory {
	return migration.New(version, name, migrate, rollback)
}
