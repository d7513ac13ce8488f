package source

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/kingkw1/stratum/internal/logger"
	"github.com/kingkw1/stratum/migration"
	"github.com/pkg/errors"
)

const DefaultMigrationsFolder = "./migrations"

const (
	sqlExtension = "sql"

	migrateFileSuffix         = "migrate"
	rollbackFileSuffix        = "rollback"
	migrateFileFullExtension  = ".migrate.sql"
	rollbackFileFullExtension = ".rollback.sql"

	// keys look like 003_add_score_column
	keyFormat = `^(?P<version>\d{3})_(?P<name>[a-zA-Z]\w*)$`
)

var keyRegexp = regexp.MustCompile(keyFormat)

// LocalFolderSource discovers migration pairs in a single folder,
// named {3 digit version}_{description}.migrate.sql plus the matching
// .rollback.sql file.
type LocalFolderSource struct {
	folder string
	lg     logger.Logger
}

var _ Source = (*LocalFolderSource)(nil)

func NewLocalFolderSource(folder string, lg logger.Logger) *LocalFolderSource {
	return &LocalFolderSource{folder: folder, lg: lg}
}

func (lfs *LocalFolderSource) IsValid() bool {
	info, err := os.Stat(lfs.folder)
	if os.IsNotExist(err) {
		return false
	}

	return info.IsDir()
}

// Create scaffolds the next version's migrate and rollback files and
// returns the new, still empty, migration.
func (lfs *LocalFolderSource) Create(name string) (*migration.Migration, error) {
	keys, err := lfs.scanFolder()
	if err != nil {
		return nil, err
	}

	var last migration.Version
	for key := range keys {
		v, _, vErr := parseKey(key)
		if vErr != nil {
			return nil, vErr
		}

		if v > last {
			last = v
		}
	}

	next := last + 1
	key := migration.CreateKey(next, name)

	for _, filename := range []string{
		filepath.Join(lfs.folder, key+migrateFileFullExtension),
		filepath.Join(lfs.folder, key+rollbackFileFullExtension),
	} {
		f, err := os.Create(filename)
		if err != nil {
			return nil, errors.Wrapf(err, "could not create file [%s]", filename)
		}

		if cErr := f.Close(); cErr != nil {
			return nil, errors.Wrapf(cErr, "could not close file [%s]", filename)
		}
	}

	return &migration.Migration{Version: next, Name: name}, nil
}

func (lfs *LocalFolderSource) Select(ctx context.Context) (migration.Migrations, error) {
	keys, err := lfs.scanFolder()
	if err != nil {
		return nil, err
	}

	// buffered so readers never block when Select bails out early
	migrationsCh := make(chan *migration.Migration, len(keys))
	errorsCh := make(chan error, len(keys))
	var wg sync.WaitGroup

	for k := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			m, err := lfs.readOne(key)
			if err != nil {
				errorsCh <- errors.Wrapf(err, "with key %s", key)
				return
			}

			migrationsCh <- m
		}(k)
	}

	go func() {
		wg.Wait()
		close(migrationsCh)
		close(errorsCh)
	}()

	var result migration.Migrations

	for {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case m, ok := <-migrationsCh:
			if ok {
				result = append(result, m)
			} else {
				sort.Sort(result)

				if err := validateUnique(result); err != nil {
					return nil, err
				}

				return result, nil
			}
		case err, ok := <-errorsCh:
			if ok {
				lfs.lg.Error(err)
				return nil, err
			}
		}
	}
}

// scanFolder maps every migration key to the number of files found
// for it. A complete migration has exactly two, the migrate and the
// rollback file.
func (lfs *LocalFolderSource) scanFolder() (map[string]int, error) {
	files, err := os.ReadDir(lfs.folder)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read keys from folder %s", lfs.folder)
	}

	keys := make(map[string]int)

	for i := range files {
		if files[i].IsDir() {
			continue
		}

		key, err := convertFilenameToKey(files[i].Name())
		if err != nil {
			return nil, errors.Wrapf(err, "file %s is not a valid migration name", files[i].Name())
		}

		keys[key]++
	}

	for key, count := range keys {
		if count != 2 {
			return nil, errors.Wrapf(ErrIncompleteMigration, "%s", key)
		}
	}

	return keys, nil
}

func (lfs *LocalFolderSource) readOne(key string) (*migration.Migration, error) {
	version, name, err := parseKey(key)
	if err != nil {
		return nil, err
	}

	migrateContents, err := os.ReadFile(filepath.Join(lfs.folder, key+migrateFileFullExtension))
	if err != nil {
		return nil, err
	}

	rollbackContents, err := os.ReadFile(filepath.Join(lfs.folder, key+rollbackFileFullExtension))
	if err != nil {
		return nil, err
	}

	factory := migration.New(version, name, scripts(migrateContents), scripts(rollbackContents))

	return factory()
}

func parseKey(key string) (migration.Version, string, error) {
	matches := keyRegexp.FindStringSubmatch(key)
	if len(matches) < 3 {
		return 0, "", errors.Wrapf(ErrNotAMigrationFile, "%s", key)
	}

	version, err := migration.ParseVersion(matches[1])
	if err != nil {
		return 0, "", err
	}

	return version, matches[2], nil
}

func convertFilenameToKey(path string) (string, error) {
	_, name := filepath.Split(path)
	segments := strings.Split(filepath.Base(name), ".")

	if len(segments) != 3 {
		return "", errors.Wrapf(ErrNotAMigrationFile, "%s", path)
	}

	if segments[2] != sqlExtension || !(segments[1] == migrateFileSuffix || segments[1] == rollbackFileSuffix) {
		return "", errors.Wrapf(ErrNotAMigrationFile, "%s", path)
	}

	if !keyRegexp.MatchString(segments[0]) {
		return "", errors.Wrapf(ErrNotAMigrationFile, "%s", path)
	}

	return segments[0], nil
}

// scripts keeps the file contents as a single statement block, empty
// files produce no scripts at all.
func scripts(contents []byte) []string {
	s := strings.TrimSpace(string(contents))
	if s == "" {
		return nil
	}

	return []string{s}
}
