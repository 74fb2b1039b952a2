package storage

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testInMemoryDataSourceName = "file:storage-internal?mode=memory&cache=shared"

func replaceDialectors(testingT *testing.T, replacement map[string]dialectorFactory) {
	originalDialectors := dialectors
	testingT.Cleanup(func() {
		dialectors = originalDialectors
	})
	dialectors = replacement
}

func TestOpenDatabaseNormalizesConfiguration(testingT *testing.T) {
	var receivedDataSourceName string
	replaceDialectors(testingT, map[string]dialectorFactory{
		DriverNameSQLite: func(dataSourceName string) gorm.Dialector {
			receivedDataSourceName = dataSourceName
			return sqlite.Open(testInMemoryDataSourceName)
		},
	})

	database, openErr := OpenDatabase(Config{DriverName: " SQLite ", DataSourceName: " history.db "})
	require.NoError(testingT, openErr)
	require.Equal(testingT, "history.db", receivedDataSourceName)
	require.NoError(testingT, Close(database))
}

func TestOpenDatabaseReportsOpenError(testingT *testing.T) {
	missingDirectory := filepath.Join(testingT.TempDir(), "missing")
	dataSourceName := fmt.Sprintf("file:%s?mode=rw", filepath.Join(missingDirectory, "history.db"))

	_, openErr := OpenDatabase(Config{DriverName: DriverNameSQLite, DataSourceName: dataSourceName})
	require.Error(testingT, openErr)
	require.Contains(testingT, openErr.Error(), errorMessageOpen+" "+DriverNameSQLite)
}

func TestOpenHistoryDoesNotMigrateOnOpenFailure(testingT *testing.T) {
	replaceDialectors(testingT, map[string]dialectorFactory{})

	_, openErr := OpenHistory(filepath.Join(testingT.TempDir(), "history.db"))
	require.ErrorIs(testingT, openErr, ErrUnsupportedDriver)
}
