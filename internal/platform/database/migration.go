package database

import (
	"os"
	"path/filepath"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/pkg/errors"
)

// migrationLogger adapts ectologger to the migrate.Logger interface.
type migrationLogger struct {
	ectologger.Logger
}

func (l migrationLogger) Verbose() bool { return true }

func (l migrationLogger) Printf(format string, v ...any) {
	l.Infof(format, v...)
}

type MigrationConfig struct {
	MigrationFolderPath string
	Version             uint // 0 migrates to the latest version
	Force               int  // non-zero forces the schema version before migrating
	AutoRollback        bool // revert a dirty schema to the previous version on failure
}

type MigrationService struct {
	config *MigrationConfig
	logger ectologger.Logger
}

func NewMigrationService(logger ectologger.Logger, config *MigrationConfig) *MigrationService {
	return &MigrationService{
		config: config,
		logger: logger,
	}
}

// Migrate brings the schema to the configured version. The folder path is
// tried as given, then relative to the working directory.
func (ms *MigrationService) Migrate(databaseName string, driver database.Driver) error {
	folder := ms.resolveMigrationFolder()
	if _, err := os.Stat(folder); err != nil {
		return errors.Wrapf(err, "migration folder %s does not exist", folder)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+folder, databaseName, driver)
	if err != nil {
		ms.logger.WithError(err).Error("Failed to create migrate instance")
		return err
	}
	m.Log = migrationLogger{Logger: ms.logger}

	if ms.config.Force != 0 {
		if err := m.Force(ms.config.Force); err != nil {
			ms.logger.WithError(err).Errorf("Failed to force schema to version %d", ms.config.Force)
			return err
		}
	}

	previous, _, _ := m.Version()

	start := time.Now()
	if ms.config.Version != 0 {
		err = m.Migrate(ms.config.Version)
	} else {
		err = m.Up()
	}

	if err == nil || err == migrate.ErrNoChange {
		ms.logger.Infof("Database migrations completed in %v", time.Since(start))
		return nil
	}

	return ms.handleFailure(m, err, previous)
}

func (ms *MigrationService) resolveMigrationFolder() string {
	folder := ms.config.MigrationFolderPath
	if _, err := os.Stat(folder); err == nil {
		return folder
	}
	wd, _ := os.Getwd()
	return filepath.Join(wd, folder)
}

func (ms *MigrationService) handleFailure(m *migrate.Migrate, migrationErr error, previous uint) error {
	ms.logger.WithError(migrationErr).Error("Migration failed")

	version, dirty, versionErr := m.Version()
	if versionErr != nil && versionErr != migrate.ErrNilVersion {
		ms.logger.WithError(versionErr).Error("Failed to read current migration version")
		return migrationErr
	}

	if ms.config.AutoRollback && dirty {
		if previous == 0 && version > 0 {
			previous = version - 1
		}
		ms.logger.Warnf("Schema is dirty at version %d, reverting to version %d", version, previous)
		if err := m.Force(int(previous)); err != nil {
			ms.logger.WithError(err).Errorf("Failed to force schema to version %d", previous)
			return err
		}
		// Startup still fails after a revert
		return migrationErr
	}

	ms.logger.Errorf("Schema left dirty=%t at version %d", dirty, version)
	return migrationErr
}
