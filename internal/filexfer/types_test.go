package filexfer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginRoundTrip(t *testing.T) {
	in := Login{
		ClientType: Push,
		PType:      MoveToBackup,
		ClientPath: "/data/out",
		SrvPath:    "/data/in",
		ClientPathBak: "/data/bak",
		AndChild:   true,
		MatchName:  "*.csv,*.txt",
		TimeTvl:    5 * time.Second,
		Timeout:    30 * time.Second,
		PName:      "feedA",
	}

	out, err := DecodeLogin(EncodeLogin(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestAnnounceRoundTrip(t *testing.T) {
	in := Announce{
		Filename: "sub/dir/file.csv",
		MTime:    time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC),
		Size:     4096,
	}
	out, err := DecodeAnnounce(EncodeAnnounce(in))
	require.NoError(t, err)
	assert.Equal(t, in.Filename, out.Filename)
	assert.Equal(t, in.Size, out.Size)
	assert.Equal(t, in.MTime.Unix(), out.MTime.Unix())
}

func TestAckRoundTrip(t *testing.T) {
	out, err := DecodeAck(EncodeAck(Ack{Filename: "x.csv", OK: true}))
	require.NoError(t, err)
	assert.True(t, out.OK)

	out, err = DecodeAck(EncodeAck(Ack{Filename: "y.csv", OK: false}))
	require.NoError(t, err)
	assert.False(t, out.OK)
}

func TestIsAnnounceVsHeartbeat(t *testing.T) {
	assert.True(t, IsAnnounce(EncodeAnnounce(Announce{Filename: "a"})))
	assert.False(t, IsAnnounce(HeartbeatFrame()))
	assert.True(t, IsHeartbeat(HeartbeatFrame()))
}
