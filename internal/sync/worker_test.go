package sync

import (
	"context"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datacenterhub/idcbus/internal/errkind"
)

func newTestWorker(t *testing.T, cfg Config, local, remote *fakeDriver) *Worker {
	t.Helper()
	localName := "sync_fake_local_" + t.Name()
	remoteName := "sync_fake_remote_" + t.Name()
	registerFakeDriver(localName, local)
	registerFakeDriver(remoteName, remote)

	cfg.LocalDriver = localName
	cfg.LocalDSN = "x"
	cfg.RemoteDriver = remoteName
	cfg.RemoteDSN = "x"

	w, err := Open(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func TestRunCycleDirectVariantBatchesAndCommitsPerChunk(t *testing.T) {
	local := newFakeDriver()
	local.maxKey = "5"
	remote := newFakeDriver()
	remote.cursorRows = [][]string{{"6", "x"}, {"7", "y"}, {"8", "z"}}

	w := newTestWorker(t, Config{
		LocalTable:   "local_t",
		RemoteTable:  "remote_t",
		LocalCols:    []string{"a", "b"},
		RemoteCols:   []string{"a", "b"},
		LocalKeyCol:  "lk",
		RemoteKeyCol: "rk",
		MaxCount:     2,
	}, local, remote)

	moved, err := w.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, moved)

	local.mu.Lock()
	defer local.mu.Unlock()
	assert.Len(t, local.execs, 2, "3 rows at batch size 2 should flush twice")
	assert.Equal(t, 2, local.commits)
}

func TestRunCycleFederatedVariantSelectsOnlyKeyColumn(t *testing.T) {
	local := newFakeDriver()
	local.maxKey = "0"
	remote := newFakeDriver()
	remote.cursorRows = [][]string{{"1"}, {"2"}}

	w := newTestWorker(t, Config{
		LocalTable:     "local_t",
		RemoteTable:    "remote_t",
		FederatedTable: "fed_t",
		LocalCols:      []string{"a", "b"},
		RemoteCols:     []string{"a", "b"},
		LocalKeyCol:    "lk",
		RemoteKeyCol:   "rk",
		MaxCount:       10,
	}, local, remote)

	moved, err := w.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, moved)

	local.mu.Lock()
	defer local.mu.Unlock()
	require.Len(t, local.execs, 1)
	assert.Contains(t, local.execs[0], "SELECT a, b FROM fed_t")
	assert.Contains(t, local.execs[0], "WHERE rk IN")
}

func TestRunCycleZeroRowsIsNotAnError(t *testing.T) {
	local := newFakeDriver()
	remote := newFakeDriver() // no cursorRows

	w := newTestWorker(t, Config{
		LocalTable: "local_t", RemoteTable: "remote_t",
		LocalCols: []string{"a"}, RemoteCols: []string{"a"},
		LocalKeyCol: "lk", RemoteKeyCol: "rk", MaxCount: 10,
	}, local, remote)

	moved, err := w.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, moved)
}

func TestRunCycleDuplicateKeyIsFatalAndRollsBack(t *testing.T) {
	local := newFakeDriver()
	local.execErr = &mysql.MySQLError{Number: 1062, Message: "duplicate"}
	local.execErrOn = "INSERT"
	remote := newFakeDriver()
	remote.cursorRows = [][]string{{"6", "x"}}

	w := newTestWorker(t, Config{
		LocalTable: "local_t", RemoteTable: "remote_t",
		LocalCols: []string{"a", "b"}, RemoteCols: []string{"a", "b"},
		LocalKeyCol: "lk", RemoteKeyCol: "rk", MaxCount: 10,
	}, local, remote)

	moved, err := w.RunCycle(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, moved)

	kind, ok := errkind.Of(err)
	require.True(t, ok)
	assert.Equal(t, errkind.Duplicate, kind)

	local.mu.Lock()
	defer local.mu.Unlock()
	assert.Equal(t, 1, local.rollbacks)
}
