package tuning

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeTuneFrameRoundTrips(t *testing.T) {
	frame := EncodeTuneFrame(851012500)
	freq, ok := DecodeTuneFrame(frame[:])
	require.True(t, ok)
	assert.Equal(t, uint32(851012500), freq)
}

func TestDecodeTuneFrameRejectsReservedByte0(t *testing.T) {
	frame := []byte{0x01, 1, 2, 3, 4}
	_, ok := DecodeTuneFrame(frame)
	assert.False(t, ok)
}

func TestDecodeTuneFrameRejectsWrongLength(t *testing.T) {
	_, ok := DecodeTuneFrame([]byte{0x00, 1, 2, 3})
	assert.False(t, ok)
}

func TestRTLUDPTunerSendsFrameOnce(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	_, portStr, err := net.SplitHostPort(pc.LocalAddr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	tuner, err := NewRTLUDPTuner(port)
	require.NoError(t, err)
	defer tuner.Close()

	require.NoError(t, tuner.SetFreq(851012500))

	buf := make([]byte, 16)
	_ = pc.SetReadDeadline(time.Now().Add(time.Second))
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	freq, ok := DecodeTuneFrame(buf[:n])
	require.True(t, ok)
	assert.Equal(t, uint32(851012500), freq)

	require.NoError(t, tuner.SetFreq(851012500)) // idempotent, no second datagram expected
	_ = pc.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = pc.ReadFrom(buf)
	assert.Error(t, err, "expected a read timeout, not a second datagram")
}
