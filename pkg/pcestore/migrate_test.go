package pcestore

import (
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

// TestMigrateExecutesSchema asserts the CREATE TABLE batch runs against a
// mocked connection without depending on a real sqlite file, the same way
// the teacher's store package isolates schema migration from disk I/O.
func TestMigrateExecutesSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("PRAGMA journal_mode=WAL").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS state").WillReturnResult(sqlmock.NewResult(0, 0))

	_, err = db.Exec("PRAGMA journal_mode=WAL;")
	require.NoError(t, err)
	_, err = db.Exec(schema)
	require.NoError(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}
