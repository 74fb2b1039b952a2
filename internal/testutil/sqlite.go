package testutil

import (
	"fmt"
	"log"
	"strings"
	"testing"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MarkoPoloResearchLab/formlab/internal/storage"
)

const (
	sqliteTestDatabaseNamePrefix        = "formlab-test-db"
	sqliteInMemoryDataSourceNamePattern = "file:%s?mode=memory&cache=shared&_foreign_keys=on"
)

type testingLogWriter struct {
	testingT testing.TB
}

func (writer testingLogWriter) Write(data []byte) (int, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed != "" {
		writer.testingT.Log(trimmed)
	}
	return len(data), nil
}

// SQLiteTestConfiguration returns a storage configuration for a unique shared in-memory database.
func SQLiteTestConfiguration() storage.Config {
	databaseName := fmt.Sprintf("%s-%s", sqliteTestDatabaseNamePrefix, storage.NewID())
	return storage.Config{
		DriverName:     storage.DriverNameSQLite,
		DataSourceName: fmt.Sprintf(sqliteInMemoryDataSourceNamePattern, databaseName),
	}
}

// OpenSQLiteTestDatabase opens and migrates a fresh in-memory database whose
// errors are logged through the test and which is closed on cleanup.
func OpenSQLiteTestDatabase(testingT testing.TB) *gorm.DB {
	testingT.Helper()

	database, openErr := storage.OpenDatabase(SQLiteTestConfiguration())
	if openErr != nil {
		testingT.Fatalf("open sqlite test database: %v", openErr)
	}
	database = database.Session(&gorm.Session{Logger: logger.New(
		log.New(testingLogWriter{testingT: testingT}, "", 0),
		logger.Config{
			IgnoreRecordNotFoundError: true,
			LogLevel:                  logger.Error,
		},
	)})
	if migrateErr := storage.AutoMigrate(database); migrateErr != nil {
		testingT.Fatalf("migrate sqlite test database: %v", migrateErr)
	}

	testingT.Cleanup(func() {
		_ = storage.Close(database)
	})
	return database
}
