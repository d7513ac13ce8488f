package cli

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const DefaultConfigPath = "./stratum.yaml"

const configFileStub = `version: "1"

migrations:
  # local_folder: %%STRATUM_MIGRATIONS_FOLDER%%
  local_folder: ./migrations
  # database_url: %%STRATUM_DATABASE_URL%%
  database_url: sqlite://./app.db
  ledger_table: schema_ledger
  lock_timeout_seconds: 3
  no_wait_lock: false
`

type Config struct {
	DatabaseURL      string
	MigrationsFolder string
	LedgerTable      string
	LockTimeout      time.Duration
	NoWaitLock       bool
}

type (
	migrationsSection struct {
		LocalFolder        string `yaml:"local_folder"`
		DatabaseURL        string `yaml:"database_url"`
		LedgerTable        string `yaml:"ledger_table"`
		LockTimeoutSeconds int    `yaml:"lock_timeout_seconds"`
		NoWaitLock         bool   `yaml:"no_wait_lock"`
	}

	configFile struct {
		Version    string            `yaml:"version"`
		Migrations migrationsSection `yaml:"migrations"`
	}
)

func CreateConfigFromYaml(path string) (Config, error) {
	var cfg Config

	f, err := os.Open(path)
	if err != nil {
		return cfg, errors.Wrap(err, "could not open stratum configuration file")
	}

	defer func() {
		if errClose := f.Close(); errClose != nil {
			panic(errClose)
		}
	}()

	b, err := io.ReadAll(f)
	if err != nil {
		return cfg, errors.Wrap(err, "could not read stratum configuration file")
	}

	var cfgFile configFile
	if err := yaml.Unmarshal(b, &cfgFile); err != nil {
		return cfg, errors.Wrap(err, "could not parse stratum configuration file")
	}

	cfg.DatabaseURL = expandEnvPlaceholder(cfgFile.Migrations.DatabaseURL)
	cfg.MigrationsFolder = expandEnvPlaceholder(cfgFile.Migrations.LocalFolder)
	cfg.LedgerTable = cfgFile.Migrations.LedgerTable
	cfg.NoWaitLock = cfgFile.Migrations.NoWaitLock

	if cfgFile.Migrations.LockTimeoutSeconds > 0 {
		cfg.LockTimeout = time.Duration(cfgFile.Migrations.LockTimeoutSeconds) * time.Second
	}

	if cfg.DatabaseURL == "" {
		return cfg, errors.New("database url was not defined")
	}

	if cfg.MigrationsFolder == "" {
		return cfg, errors.New("migrations folder was not defined")
	}

	return cfg, nil
}

// expandEnvPlaceholder resolves %%VAR%% values from the environment.
func expandEnvPlaceholder(v string) string {
	if strings.HasPrefix(v, "%%") && strings.HasSuffix(v, "%%") {
		return os.Getenv(strings.ReplaceAll(v, "%%", ""))
	}

	return v
}

// InitCfg writes a stub configuration file to path.
func InitCfg(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "could not create config file")
	}

	defer func() {
		if err := f.Close(); err != nil {
			panic(err)
		}
	}()

	r := strings.NewReader(configFileStub)

	if _, err := io.Copy(f, r); err != nil {
		return err
	}

	return nil
}

func FileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return !info.IsDir()
}
