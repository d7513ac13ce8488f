package cli

import (
	"context"
	"log"
	"os"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/kingkw1/stratum"
	"github.com/kingkw1/stratum/migration"
)

var (
	ErrFolderInvalid        = errors.New("migrations folder is invalid")
	ErrSourceCannotScaffold = errors.New("the configured source cannot scaffold migrations")
	ErrUnknownDriver        = errors.New("unknown database driver")
)

type (
	CloserFunc func() error

	ActionConfig struct {
		Target migration.Version
		Steps  int
	}

	App struct {
		runner *stratum.Runner
	}

	runnerFactory    func(cfg Config) (*stratum.Runner, stratum.CloserFunc, error)
	runnerFactoryMap map[string]runnerFactory
)

func NewFromYaml(path string) (*App, CloserFunc, error) {
	cfg, err := CreateConfigFromYaml(path)
	if err != nil {
		return nil, nil, err
	}

	return New(cfg)
}

func New(cfg Config) (*App, CloserFunc, error) {
	r, closer, err := createRunner(cfg)
	if err != nil {
		return nil, nil, err
	}

	return &App{runner: r}, CloserFunc(closer), nil
}

func (app *App) Up(ctx context.Context, cfg ActionConfig) ([]string, error) {
	applied, err := app.runner.Up(ctx, configurators(cfg)...)
	if err != nil && !errors.Is(err, stratum.ErrNothingToMigrate) {
		return applied, err
	}

	return applied, nil
}

func (app *App) Down(ctx context.Context, cfg ActionConfig) ([]string, error) {
	reverted, err := app.runner.Down(ctx, configurators(cfg)...)
	if err != nil && !errors.Is(err, stratum.ErrNothingToMigrate) {
		return reverted, err
	}

	return reverted, nil
}

func (app *App) Status(ctx context.Context) (*stratum.Status, error) {
	return app.runner.Status(ctx)
}

// CreateMigration scaffolds the next version's migrate and rollback
// files in the configured folder.
func (app *App) CreateMigration(name string) (*migration.Migration, error) {
	src := app.runner.Source()
	if src == nil {
		return nil, ErrSourceCannotScaffold
	}

	if !src.IsValid() {
		return nil, ErrFolderInvalid
	}

	return src.Create(name)
}

func configurators(cfg ActionConfig) []stratum.ActionConfigurator {
	var cfs []stratum.ActionConfigurator

	if cfg.Target != 0 {
		cfs = append(cfs, stratum.WithTarget(cfg.Target))
	}

	if cfg.Steps > 0 {
		cfs = append(cfs, stratum.WithSteps(cfg.Steps))
	}

	return cfs
}

func commonOptions(cfg Config) []stratum.OptionFunc {
	opts := []stratum.OptionFunc{
		stratum.UseLocalFolderSource(cfg.MigrationsFolder),
		stratum.UseColorLogger(log.New(os.Stdout, "", 0), true, false),
	}

	if cfg.LedgerTable != "" {
		opts = append(opts, stratum.UseLedgerTable(cfg.LedgerTable))
	}

	if cfg.LockTimeout > 0 {
		opts = append(opts, stratum.UseLockTimeout(cfg.LockTimeout))
	}

	if cfg.NoWaitLock {
		opts = append(opts, stratum.UseNoWaitLock())
	}

	return opts
}

func createMySQLRunner(cfg Config) (*stratum.Runner, stratum.CloserFunc, error) {
	db, err := sqlx.Open("mysql", strings.TrimPrefix(cfg.DatabaseURL, "mysql://"))
	if err != nil {
		return nil, nil, err
	}

	opts := append(commonOptions(cfg), stratum.UseMySQL(db))
	return stratum.NewRunner(opts...)
}

func createPostgresRunner(cfg Config) (*stratum.Runner, stratum.CloserFunc, error) {
	db, err := sqlx.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}

	opts := append(commonOptions(cfg), stratum.UsePostgres(db))
	return stratum.NewRunner(opts...)
}

func createSQLiteRunner(cfg Config) (*stratum.Runner, stratum.CloserFunc, error) {
	db, err := sqlx.Open("sqlite3", strings.TrimPrefix(cfg.DatabaseURL, "sqlite://"))
	if err != nil {
		return nil, nil, err
	}

	opts := append(commonOptions(cfg), stratum.UseSQLite(db))
	return stratum.NewRunner(opts...)
}

func createRunner(cfg Config) (*stratum.Runner, stratum.CloserFunc, error) {
	factoryMap := runnerFactoryMap{
		"mysql":    createMySQLRunner,
		"postgres": createPostgresRunner,
		"sqlite":   createSQLiteRunner,
	}

	driver, err := driverFromURL(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}

	factory, ok := factoryMap[driver]
	if !ok {
		return nil, nil, errors.Wrapf(ErrUnknownDriver, "%s", driver)
	}

	return factory(cfg)
}

func driverFromURL(url string) (string, error) {
	switch {
	case strings.HasPrefix(url, "mysql"):
		return "mysql", nil
	case strings.HasPrefix(url, "postgres"):
		return "postgres", nil
	case strings.HasPrefix(url, "sqlite"):
		return "sqlite", nil
	default:
		return "", errors.Wrapf(ErrUnknownDriver, "%s", url)
	}
}
