package control

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arancormonk/dsd-neo/internal/tuning"
)

func TestListenerInvokesCallbackOnValidFrame(t *testing.T) {
	got := make(chan uint32, 1)
	l, err := NewListener(0, func(freqHz uint32) { got <- freqHz })
	require.NoError(t, err)
	defer l.Stop()

	go l.Serve()

	addr := l.conn.LocalAddr().(*net.UDPAddr)
	conn, err := net.Dial("udp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	frame := tuning.EncodeTuneFrame(851012500)
	_, err = conn.Write(frame[:])
	require.NoError(t, err)

	select {
	case freq := <-got:
		assert.Equal(t, uint32(851012500), freq)
	case <-time.After(2 * time.Second):
		t.Fatal("callback was not invoked")
	}
}

func TestListenerIgnoresReservedByte0(t *testing.T) {
	got := make(chan uint32, 1)
	l, err := NewListener(0, func(freqHz uint32) { got <- freqHz })
	require.NoError(t, err)
	defer l.Stop()

	go l.Serve()

	addr := l.conn.LocalAddr().(*net.UDPAddr)
	conn, err := net.Dial("udp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{0x01, 1, 2, 3, 4})
	require.NoError(t, err)

	select {
	case <-got:
		t.Fatal("callback should not fire for a reserved byte0")
	case <-time.After(200 * time.Millisecond):
		// expected
	}
}

func TestListenerStopUnblocksServe(t *testing.T) {
	l, err := NewListener(0, nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		l.Serve()
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	l.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Stop")
	}
}
