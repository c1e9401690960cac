package sync

import (
	"database/sql"
	"database/sql/driver"
	"io"
	"strings"
	"sync"
)

// fakeDriver is a minimal database/sql/driver.Driver stub, following the
// same stdlib-only fake-driver convention as internal/dbpool/pool_test.go
// and internal/iface/registry_test.go — no pack repo exercises sqlmock
// directly, so a hand-written driver is the grounded choice for exercising
// real database/sql machinery (Tx, Scan, placeholder binding) without a
// live database.
type fakeDriver struct {
	mu sync.Mutex

	maxKey      string       // answer to "SELECT MAX(...)"
	cursorRows  [][]string   // rows returned by the remote SELECT ... WHERE key > ?
	execErr     error        // forced error for the next matching INSERT/DELETE
	execErrOn   string       // substring the forced execErr applies to ("INSERT" or "DELETE")
	execs       []string     // every Exec'd query, in order
	commits     int
	rollbacks   int
}

func newFakeDriver() *fakeDriver { return &fakeDriver{} }

func (d *fakeDriver) Open(name string) (driver.Conn, error) { return &fakeConn{d: d}, nil }

type fakeConn struct{ d *fakeDriver }

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) { return &fakeStmt{c: c, query: query}, nil }
func (c *fakeConn) Close() error                              { return nil }
func (c *fakeConn) Begin() (driver.Tx, error)                 { return &fakeTx{d: c.d}, nil }

type fakeTx struct{ d *fakeDriver }

func (t *fakeTx) Commit() error {
	t.d.mu.Lock()
	t.d.commits++
	t.d.mu.Unlock()
	return nil
}

func (t *fakeTx) Rollback() error {
	t.d.mu.Lock()
	t.d.rollbacks++
	t.d.mu.Unlock()
	return nil
}

type fakeStmt struct {
	c     *fakeConn
	query string
}

func (s *fakeStmt) Close() error  { return nil }
func (s *fakeStmt) NumInput() int { return -1 }

func (s *fakeStmt) Exec(args []driver.Value) (driver.Result, error) {
	d := s.c.d
	d.mu.Lock()
	defer d.mu.Unlock()
	d.execs = append(d.execs, s.query)

	upper := strings.ToUpper(s.query)
	if d.execErr != nil && strings.Contains(upper, d.execErrOn) {
		err := d.execErr
		d.execErr = nil
		return nil, err
	}
	return driver.RowsAffected(1), nil
}

func (s *fakeStmt) Query(args []driver.Value) (driver.Rows, error) {
	d := s.c.d
	d.mu.Lock()
	defer d.mu.Unlock()

	upper := strings.ToUpper(s.query)
	switch {
	case strings.HasPrefix(upper, "SELECT MAX("):
		return &singleValueRows{val: d.maxKey}, nil
	default:
		return &stringRows{wide: d.cursorRows}, nil
	}
}

// singleValueRows answers a "SELECT MAX(...)" with exactly one row, one
// column.
type singleValueRows struct {
	val  string
	done bool
}

func (r *singleValueRows) Columns() []string { return []string{"max"} }
func (r *singleValueRows) Close() error      { return nil }
func (r *singleValueRows) Next(dest []driver.Value) error {
	if r.done {
		return io.EOF
	}
	r.done = true
	if r.val == "" {
		dest[0] = nil
		return nil
	}
	dest[0] = r.val
	return nil
}

// stringRows replays a fixed set of rows, each a slice of one string value
// per column.
type stringRows struct {
	wide [][]string
	idx  int
}

func (r *stringRows) Columns() []string {
	if len(r.wide) == 0 {
		return []string{"c"}
	}
	cols := make([]string, len(r.wide[0]))
	for i := range cols {
		cols[i] = "c"
	}
	return cols
}
func (r *stringRows) Close() error { return nil }
func (r *stringRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.wide) {
		return io.EOF
	}
	row := r.wide[r.idx]
	r.idx++
	for i, v := range row {
		dest[i] = v
	}
	return nil
}

func registerFakeDriver(name string, d *fakeDriver) {
	sql.Register(name, d)
}
