package proxy

import (
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControlReaderAssemblesFrameAcrossPartialReads(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	payload := []byte("<dst_ip>10.0.0.5</dst_ip><dst_port>22</dst_port>")
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))

	// Write the header and the first half of the body first.
	_, err = w.Write(hdr[:])
	require.NoError(t, err)
	_, err = w.Write(payload[:10])
	require.NoError(t, err)

	var cr controlReader
	fd := int(r.Fd())

	got, ok, err := cr.poll(fd)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)

	_, err = w.Write(payload[10:])
	require.NoError(t, err)

	got, ok, err = cr.poll(fd)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payload, got)
}

func TestControlReaderHandlesBackToBackFrames(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	a := []byte("one")
	b := []byte("two")
	var buf []byte
	for _, p := range [][]byte{a, b} {
		var hdr [4]byte
		binary.BigEndian.PutUint32(hdr[:], uint32(len(p)))
		buf = append(buf, hdr[:]...)
		buf = append(buf, p...)
	}
	_, err = w.Write(buf)
	require.NoError(t, err)

	var cr controlReader
	fd := int(r.Fd())

	got1, ok, err := cr.poll(fd)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, a, got1)

	got2, ok, err := cr.poll(fd)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, b, got2)
}

func TestIsActiveTest(t *testing.T) {
	assert.True(t, IsActiveTest(activeTestFrame))
	assert.False(t, IsActiveTest([]byte("<dst_ip>x</dst_ip>")))
}
