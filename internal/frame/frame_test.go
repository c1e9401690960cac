package frame

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipe(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	c1, c2 := net.Pipe()
	t.Cleanup(func() { c1.Close(); c2.Close() })
	return c1, c2
}

func TestSendRecvRoundTrip(t *testing.T) {
	a, b := pipe(t)

	payload := []byte("<activetest>ok</activetest>")
	go func() {
		require.NoError(t, Send(a, payload))
	}()

	got, err := Recv(b, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestRecvEmptyFrameIsLegal(t *testing.T) {
	a, b := pipe(t)

	go func() {
		require.NoError(t, Send(a, nil))
	}()

	got, err := Recv(b, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{}, got)
}

func TestRecvTimeout(t *testing.T) {
	_, b := pipe(t)

	_, err := Recv(b, 50*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Timeout")
}

func TestRecvPeerClosed(t *testing.T) {
	a, b := pipe(t)
	a.Close()

	_, err := Recv(b, time.Second)
	require.Error(t, err)
}

func TestMultipleFramesPositional(t *testing.T) {
	a, b := pipe(t)

	msgs := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	go func() {
		for _, m := range msgs {
			require.NoError(t, Send(a, m))
		}
	}()

	for _, want := range msgs {
		got, err := Recv(b, 2*time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
