package datarecording_test

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquariumsim/aquarium/datarecording"
)

func setupTestDB(t *testing.T) *datarecording.SQLiteWriter {
	t.Helper()

	writer := datarecording.New(filepath.Join(t.TempDir(), "test"))
	t.Cleanup(func() { writer.DB.Close() })

	return writer
}

func TestSQLiteWriterInit(t *testing.T) {
	writer := setupTestDB(t)

	assert.NotNil(t, writer.DB, "Database connection should be established")
	assert.NotEmpty(t, writer.Filename())
}

func TestSQLiteWriterCreateTable(t *testing.T) {
	writer := setupTestDB(t)

	writer.CreateTable("test_table", struct {
		ID   int
		Name string
	}{})

	var tableName string
	err := writer.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='test_table';",
	).Scan(&tableName)
	require.NoError(t, err, "Table should be created")
	assert.Equal(t, "test_table", tableName)
}

func TestSQLiteWriterInsertAndFlush(t *testing.T) {
	writer := setupTestDB(t)

	type row struct {
		ID   int
		Name string
	}
	writer.CreateTable("test_table", row{})
	writer.InsertData("test_table", row{1, "Task1"})
	writer.Flush()

	var id int
	var name string
	err := writer.QueryRow(
		"SELECT ID, Name FROM test_table WHERE ID=1;",
	).Scan(&id, &name)
	require.NoError(t, err, "Data should be flushed")
	assert.Equal(t, 1, id)
	assert.Equal(t, "Task1", name)
}

func TestSQLiteWriterListTables(t *testing.T) {
	writer := setupTestDB(t)

	writer.CreateTable("test_table", struct{ ID int }{})

	assert.Contains(t, writer.ListTables(), "test_table")
}

func TestSQLiteWriterRejectsNestedStructs(t *testing.T) {
	writer := setupTestDB(t)

	type attribute struct {
		ID int
	}

	assert.Panics(t, func() {
		writer.CreateTable("test_table", struct {
			Attribute attribute
		}{})
	})
}

func TestSQLiteWriterRejectsUnknownTable(t *testing.T) {
	writer := setupTestDB(t)

	assert.Panics(t, func() {
		writer.InsertData("missing", struct{ ID int }{1})
	})
}

func TestNewWithDBUsesExternalConnection(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	writer := datarecording.NewWithDB(db)

	type row struct{ ID int }
	writer.CreateTable("test_table", row{})
	writer.InsertData("test_table", row{7})
	writer.Flush()

	var id int
	require.NoError(t, db.QueryRow("SELECT ID FROM test_table;").Scan(&id))
	assert.Equal(t, 7, id)
	assert.Empty(t, writer.Filename())
}
