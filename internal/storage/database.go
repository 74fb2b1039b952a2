// Package storage keeps the history of scenario runs.
package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MarkoPoloResearchLab/formlab/internal/model"
)

const (
	// DriverNameSQLite identifies the pure-Go SQLite driver.
	DriverNameSQLite = "sqlite"
	// DefaultDataSourceName is the run history file used when none is configured.
	DefaultDataSourceName = "formlab.db"

	errorMessageMissingDriverName     = "storage: missing driver name"
	errorMessageUnsupportedDriver     = "storage: unsupported driver"
	errorMessageMissingDataSourceName = "storage: missing data source name"
	errorMessageOpen                  = "storage: open"
	errorMessageMigrate               = "storage: migrate"
	errorMessageClose                 = "storage: close"
)

var (
	// ErrMissingDriverName indicates a configuration without a driver name.
	ErrMissingDriverName = errors.New(errorMessageMissingDriverName)
	// ErrUnsupportedDriver indicates a driver name with no registered dialector.
	ErrUnsupportedDriver = errors.New(errorMessageUnsupportedDriver)
	// ErrMissingDataSourceName indicates a configuration without a data source.
	ErrMissingDataSourceName = errors.New(errorMessageMissingDataSourceName)
)

type dialectorFactory func(dataSourceName string) gorm.Dialector

var dialectors = map[string]dialectorFactory{
	DriverNameSQLite: sqlite.Open,
}

// Config names the database holding the run history.
type Config struct {
	DriverName     string
	DataSourceName string
}

func (configuration Config) normalized() Config {
	return Config{
		DriverName:     strings.ToLower(strings.TrimSpace(configuration.DriverName)),
		DataSourceName: strings.TrimSpace(configuration.DataSourceName),
	}
}

// OpenDatabase connects to the configured database. gorm's own logging is
// silenced; callers report failures through the returned errors.
func OpenDatabase(configuration Config) (*gorm.DB, error) {
	configuration = configuration.normalized()
	if configuration.DriverName == "" {
		return nil, ErrMissingDriverName
	}
	newDialector, supported := dialectors[configuration.DriverName]
	if !supported {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, configuration.DriverName)
	}
	if configuration.DataSourceName == "" {
		return nil, ErrMissingDataSourceName
	}

	database, openErr := gorm.Open(newDialector(configuration.DataSourceName), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if openErr != nil {
		return nil, fmt.Errorf("%s %s: %w", errorMessageOpen, configuration.DriverName, openErr)
	}
	return database, nil
}

// OpenHistory opens the SQLite history file at path, creating it and its
// schema when missing.
func OpenHistory(path string) (*gorm.DB, error) {
	database, openErr := OpenDatabase(Config{DriverName: DriverNameSQLite, DataSourceName: path})
	if openErr != nil {
		return nil, openErr
	}
	if migrateErr := AutoMigrate(database); migrateErr != nil {
		_ = Close(database)
		return nil, migrateErr
	}
	return database, nil
}

// AutoMigrate creates or updates the run history schema.
func AutoMigrate(database *gorm.DB) error {
	if migrateErr := database.AutoMigrate(&model.ScenarioRun{}); migrateErr != nil {
		return fmt.Errorf("%s: %w", errorMessageMigrate, migrateErr)
	}
	return nil
}

// Close releases the connection pool behind database.
func Close(database *gorm.DB) error {
	sqlDatabase, sqlErr := database.DB()
	if sqlErr != nil {
		return fmt.Errorf("%s: %w", errorMessageClose, sqlErr)
	}
	return sqlDatabase.Close()
}

// NewID generates a run identifier.
func NewID() string {
	return uuid.NewString()
}
