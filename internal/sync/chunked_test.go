package sync

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openFakeDB(t *testing.T, d *fakeDriver) *sql.DB {
	t.Helper()
	name := "sync_chunked_fake_" + t.Name()
	registerFakeDriver(name, d)
	db, err := sql.Open(name, "x")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestChunkedMoverDeleteOnlyCommitsPerChunk(t *testing.T) {
	d := newFakeDriver()
	d.cursorRows = [][]string{{"1"}, {"2"}, {"3"}}
	db := openFakeDB(t, d)

	m := &ChunkedMover{
		Select: db, Write: db,
		SourceTable: "t1", KeyCol: "id",
		MaxCount: 2,
	}

	moved, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, moved)

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Len(t, d.execs, 2, "3 keys at chunk size 2 should flush twice")
	for _, q := range d.execs {
		assert.Contains(t, q, "DELETE FROM t1")
	}
	assert.Equal(t, 2, d.commits)
	assert.Equal(t, 0, d.rollbacks)
}

func TestChunkedMoverMigrateSwallowsDuplicateKeyOnInsert(t *testing.T) {
	d := newFakeDriver()
	d.cursorRows = [][]string{{"1"}, {"2"}}
	d.execErr = &mysql.MySQLError{Number: 1062, Message: "duplicate"}
	d.execErrOn = "INSERT"
	db := openFakeDB(t, d)

	m := &ChunkedMover{
		Select: db, Write: db,
		SourceTable: "t1", KeyCol: "id",
		DestTable: "archive_t", DestCols: []string{"id", "val"},
		MaxCount: 10,
	}

	moved, err := m.Run(context.Background())
	require.NoError(t, err, "a duplicate-key insert is swallowed in the migrate variant")
	assert.Equal(t, 2, moved)

	d.mu.Lock()
	defer d.mu.Unlock()
	require.Len(t, d.execs, 2)
	assert.Contains(t, d.execs[0], "INSERT INTO archive_t")
	assert.Contains(t, d.execs[1], "DELETE FROM t1")
	assert.Equal(t, 1, d.commits)
	assert.Equal(t, 0, d.rollbacks)
}

func TestChunkedMoverMigrateAbortsOnNonDuplicateInsertError(t *testing.T) {
	d := newFakeDriver()
	d.cursorRows = [][]string{{"1"}}
	d.execErr = &mysql.MySQLError{Number: 1146, Message: "table doesn't exist"}
	d.execErrOn = "INSERT"
	db := openFakeDB(t, d)

	m := &ChunkedMover{
		Select: db, Write: db,
		SourceTable: "t1", KeyCol: "id",
		DestTable: "archive_t", DestCols: []string{"id"},
		MaxCount: 10,
	}

	_, err := m.Run(context.Background())
	require.Error(t, err)

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Equal(t, 1, d.rollbacks)
	assert.Equal(t, 0, d.commits)
}
