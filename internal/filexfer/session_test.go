package filexfer

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendRecvLoopEndToEndDeletesOnSuccess(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	writeFile(t, filepath.Join(srcDir, "f.csv"), "hello world")

	serverConn, clientConn := net.Pipe()

	recvErr := make(chan error, 1)
	go func() {
		recvErr <- RecvLoop(serverConn, RecvConfig{
			SrvPath: dstDir,
			Timeout: 2 * time.Second,
		})
	}()

	sendErr := make(chan error, 1)
	go func() {
		sendErr <- SendLoop(clientConn, SendConfig{
			WatchRoot:  srcDir,
			MatchName:  "*.csv",
			TimeTvl:    10 * time.Millisecond,
			AckTimeout: 2 * time.Second,
			Policy:     DeleteOnSuccess,
			StopAfter:  1,
		})
	}()

	select {
	case err := <-sendErr:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("SendLoop did not finish")
	}

	clientConn.Close()

	select {
	case err := <-recvErr:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("RecvLoop did not return after peer close")
	}

	data, err := os.ReadFile(filepath.Join(dstDir, "f.csv"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	_, err = os.Stat(filepath.Join(srcDir, "f.csv"))
	assert.True(t, os.IsNotExist(err), "source file should have been deleted after a successful ack")
}

// TestSendRecvLoopTranslatesDistinctRoots guards against announcing a
// RemotePath the receiver's ClientPath doesn't actually strip: with
// clientpath "/out" and srvpath dstDir distinct (the normal case), a
// pushed file must land at dstDir/f.csv, not doubled under it.
func TestSendRecvLoopTranslatesDistinctRoots(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	writeFile(t, filepath.Join(srcDir, "f.csv"), "hello world")

	const clientPath = "/out"

	serverConn, clientConn := net.Pipe()

	recvErr := make(chan error, 1)
	go func() {
		recvErr <- RecvLoop(serverConn, RecvConfig{
			ClientPath: clientPath,
			SrvPath:    dstDir,
			Timeout:    2 * time.Second,
		})
	}()

	sendErr := make(chan error, 1)
	go func() {
		sendErr <- SendLoop(clientConn, SendConfig{
			WatchRoot:  srcDir,
			MatchName:  "*.csv",
			RemotePath: clientPath,
			TimeTvl:    10 * time.Millisecond,
			AckTimeout: 2 * time.Second,
			Policy:     DeleteOnSuccess,
			StopAfter:  1,
		})
	}()

	require.NoError(t, <-sendErr)
	clientConn.Close()
	<-recvErr

	data, err := os.ReadFile(filepath.Join(dstDir, "f.csv"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	_, err = os.Stat(filepath.Join(dstDir, "out", "f.csv"))
	assert.True(t, os.IsNotExist(err), "file must not double under the client path prefix")
}

func TestSendLoopMovesToBackupOnSuccess(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	bakDir := t.TempDir()
	writeFile(t, filepath.Join(srcDir, "f.csv"), "data")

	serverConn, clientConn := net.Pipe()

	recvErr := make(chan error, 1)
	go func() {
		recvErr <- RecvLoop(serverConn, RecvConfig{SrvPath: dstDir, Timeout: 2 * time.Second})
	}()

	sendErr := make(chan error, 1)
	go func() {
		sendErr <- SendLoop(clientConn, SendConfig{
			WatchRoot:  srcDir,
			MatchName:  "*.csv",
			TimeTvl:    10 * time.Millisecond,
			AckTimeout: 2 * time.Second,
			Policy:     MoveToBackup,
			BackupRoot: bakDir,
			StopAfter:  1,
		})
	}()

	require.NoError(t, <-sendErr)
	clientConn.Close()
	<-recvErr

	_, err := os.Stat(filepath.Join(srcDir, "f.csv"))
	assert.True(t, os.IsNotExist(err))

	data, err := os.ReadFile(filepath.Join(bakDir, "f.csv"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}
