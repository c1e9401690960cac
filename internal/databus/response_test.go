package databus

import (
	"bufio"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCannedIncludesHeaderAndStatus(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		writeCanned(server, -1, "Permission denied")
		server.Close()
	}()

	out, err := readAll(client)
	require.NoError(t, err)
	assert.Contains(t, out, "HTTP/1.1 200 OK")
	assert.Contains(t, out, "<retcode>-1</retcode><message>Permission denied</message>")
}

func readAll(conn net.Conn) (string, error) {
	r := bufio.NewReader(conn)
	var sb strings.Builder
	buf := make([]byte, 512)
	for {
		n, err := r.Read(buf)
		sb.Write(buf[:n])
		if err != nil {
			return sb.String(), nil
		}
	}
}
