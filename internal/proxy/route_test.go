package proxy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRouteFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "routes.txt")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadRoutesParsesWhitespaceSeparatedLines(t *testing.T) {
	path := writeRouteFile(t, "9000 10.0.0.5 22\n9001  10.0.0.6   80 # web\n\n# comment only\n")
	routes, err := LoadRoutes(path)
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, Route{ListenPort: 9000, DstIP: "10.0.0.5", DstPort: 22}, routes[0])
	assert.Equal(t, Route{ListenPort: 9001, DstIP: "10.0.0.6", DstPort: 80}, routes[1])
}

func TestLoadRoutesRejectsDuplicateListenPort(t *testing.T) {
	path := writeRouteFile(t, "9000 10.0.0.5 22\n9000 10.0.0.6 80\n")
	_, err := LoadRoutes(path)
	assert.Error(t, err)
}

func TestLoadRoutesRejectsMalformedLine(t *testing.T) {
	path := writeRouteFile(t, "9000 10.0.0.5\n")
	_, err := LoadRoutes(path)
	assert.Error(t, err)
}

func TestRouteTableLookupAndPorts(t *testing.T) {
	path := writeRouteFile(t, "9000 10.0.0.5 22\n9001 10.0.0.6 80\n")
	rt, err := NewRouteTable(path, nil)
	require.NoError(t, err)

	r, ok := rt.Lookup(9000)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.5", r.DstIP)

	_, ok = rt.Lookup(9999)
	assert.False(t, ok)

	assert.ElementsMatch(t, []int{9000, 9001}, rt.Ports())
}
