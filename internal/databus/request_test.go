package databus

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadOneRequestParsesQueryString(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		client.Write([]byte("GET /?username=alice&passwd=secret&intername=orders HTTP/1.1\r\n\r\n"))
	}()

	query, ok := readOneRequest(server, time.Second)
	require.True(t, ok)
	assert.Equal(t, "alice", query.Get("username"))
	assert.Equal(t, "secret", query.Get("passwd"))
	assert.Equal(t, "orders", query.Get("intername"))
}

func TestReadOneRequestRejectsNonGET(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		client.Write([]byte("POST / HTTP/1.1\r\n\r\n"))
	}()

	_, ok := readOneRequest(server, time.Second)
	assert.False(t, ok)
}

func TestReadOneRequestTimesOutOnSilence(t *testing.T) {
	_, server := net.Pipe()
	defer server.Close()

	_, ok := readOneRequest(server, 10*time.Millisecond)
	assert.False(t, ok)
}
