package iface

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// rowsDriver is a minimal database/sql/driver stub whose Query answer
// depends only on the SQL text, letting these tests exercise CheckCredentials,
// CheckAuthorization, and LoadDefinition without a real database.
type rowsDriver struct{}

func (rowsDriver) Open(name string) (driver.Conn, error) { return rowsConn{}, nil }

type rowsConn struct{}

func (rowsConn) Prepare(query string) (driver.Stmt, error) { return rowsStmt{query: query}, nil }
func (rowsConn) Close() error                              { return nil }
func (rowsConn) Begin() (driver.Tx, error)                  { return nil, errors.New("not supported") }

type rowsStmt struct{ query string }

func (s rowsStmt) Close() error  { return nil }
func (s rowsStmt) NumInput() int { return -1 }
func (s rowsStmt) Exec(args []driver.Value) (driver.Result, error) {
	return nil, errors.New("not supported")
}
func (s rowsStmt) Query(args []driver.Value) (driver.Rows, error) {
	switch {
	case strings.Contains(s.query, "t_userinfo"):
		return &fixedRows{cols: []string{"count"}, rows: [][]driver.Value{{int64(1)}}}, nil
	case strings.Contains(s.query, "t_userandinter"):
		return &fixedRows{cols: []string{"count"}, rows: [][]driver.Value{{int64(1)}}}, nil
	case strings.Contains(s.query, "t_intercfg"):
		return &fixedRows{cols: []string{"select_sql", "output_columns", "input_parameters"},
			rows: [][]driver.Value{{"select id, name from orders where id = ?", "id,name", "id"}}}, nil
	}
	return &fixedRows{}, nil
}

type fixedRows struct {
	cols []string
	rows [][]driver.Value
	pos  int
}

func (r *fixedRows) Columns() []string { return r.cols }
func (r *fixedRows) Close() error      { return nil }
func (r *fixedRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	name := "iface_fake_" + t.Name()
	sql.Register(name, rowsDriver{})
	db, err := sql.Open(name, "x")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCheckCredentialsFound(t *testing.T) {
	db := openTestDB(t)
	ok, err := CheckCredentials(context.Background(), db, "alice", "secret")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCheckAuthorizationFound(t *testing.T) {
	db := openTestDB(t)
	ok, err := CheckAuthorization(context.Background(), db, "alice", "orders")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLoadDefinitionParsesColumnLists(t *testing.T) {
	db := openTestDB(t)
	def, err := LoadDefinition(context.Background(), db, "orders")
	require.NoError(t, err)
	require.Equal(t, []string{"id", "name"}, def.OutputColumns)
	require.Equal(t, []string{"id"}, def.InputParameters)
}
