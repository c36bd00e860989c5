package tuning

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRigctlServer accepts one connection and records every command
// line it receives, replying with a scripted response per command
// prefix (default "RPRT 0").
type fakeRigctlServer struct {
	ln       net.Listener
	received chan string
	reply    func(cmd string) string
}

func startFakeRigctlServer(t *testing.T, reply func(cmd string) string) *fakeRigctlServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeRigctlServer{ln: ln, received: make(chan string, 64), reply: reply}
	go s.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return s
}

func (s *fakeRigctlServer) serve() {
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")
		s.received <- cmd
		resp := "RPRT 0"
		if s.reply != nil {
			resp = s.reply(cmd)
		}
		if _, err := conn.Write([]byte(resp + "\n")); err != nil {
			return
		}
	}
}

func TestRigctlSetFreqSendsWireCommand(t *testing.T) {
	srv := startFakeRigctlServer(t, nil)
	c := NewRigctlClient(srv.ln.Addr().String())
	c.SetTimeout(2 * time.Second)

	require.NoError(t, c.SetFreq(851012500))
	select {
	case cmd := <-srv.received:
		assert.Equal(t, "F 851012500", cmd)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for wire command")
	}
}

func TestRigctlSetFreqTwiceIssuesWireCommandOnce(t *testing.T) {
	srv := startFakeRigctlServer(t, nil)
	c := NewRigctlClient(srv.ln.Addr().String())
	c.SetTimeout(2 * time.Second)

	require.NoError(t, c.SetFreq(851012500))
	<-srv.received
	require.NoError(t, c.SetFreq(851012500))

	select {
	case cmd := <-srv.received:
		t.Fatalf("unexpected second wire command: %q", cmd)
	case <-time.After(100 * time.Millisecond):
		// expected: no second command
	}
}

func TestRigctlSetModeFallsBackToFMOnNFMError(t *testing.T) {
	srv := startFakeRigctlServer(t, func(cmd string) string {
		if strings.HasPrefix(cmd, "M NFM") {
			return "RPRT 1"
		}
		return "RPRT 0"
	})
	c := NewRigctlClient(srv.ln.Addr().String())
	c.SetTimeout(2 * time.Second)

	require.NoError(t, c.SetMode(12500))

	first := <-srv.received
	second := <-srv.received
	assert.Contains(t, first, "NFM")
	assert.Contains(t, second, "FM")
}

func TestRigctlSetSquelchSendsWireCommand(t *testing.T) {
	srv := startFakeRigctlServer(t, nil)
	c := NewRigctlClient(srv.ln.Addr().String())
	c.SetTimeout(2 * time.Second)

	require.NoError(t, c.SetSquelch(-3))
	select {
	case cmd := <-srv.received:
		assert.Equal(t, "L SQL -3", cmd)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for wire command")
	}
}

func TestRigctlSetSquelchTwiceIssuesWireCommandOnce(t *testing.T) {
	srv := startFakeRigctlServer(t, nil)
	c := NewRigctlClient(srv.ln.Addr().String())
	c.SetTimeout(2 * time.Second)

	require.NoError(t, c.SetSquelch(-3))
	<-srv.received
	require.NoError(t, c.SetSquelch(-3))

	select {
	case cmd := <-srv.received:
		t.Fatalf("unexpected second wire command: %q", cmd)
	case <-time.After(100 * time.Millisecond):
		// expected: no second command
	}
}

func TestRigctlSquelchQueriesAndParsesResponse(t *testing.T) {
	srv := startFakeRigctlServer(t, func(cmd string) string {
		if cmd == "l SQL" {
			return "-6.5"
		}
		return "RPRT 0"
	})
	c := NewRigctlClient(srv.ln.Addr().String())
	c.SetTimeout(2 * time.Second)

	dB, err := c.Squelch()
	require.NoError(t, err)
	assert.InDelta(t, -6.5, dB, 0.001)
}

func TestRigctlDialFailureIsNonFatal(t *testing.T) {
	c := NewRigctlClient("127.0.0.1:1") // unlikely to have a listener
	c.SetTimeout(200 * time.Millisecond)
	err := c.SetFreq(1)
	assert.Error(t, err)
}
