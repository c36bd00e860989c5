// Package control implements the UDP control listener that accepts
// external retune commands, and the SM watchdog that drives the
// Trunk-SM's tick on a fixed schedule regardless of decoder traffic.
package control

import (
	"context"
	"net"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/arancormonk/dsd-neo/internal/logging"
	"github.com/arancormonk/dsd-neo/internal/tuning"
)

var log = logging.For("control")

// RetuneCallback is invoked with the decoded frequency from a valid
// 5-byte control datagram.
type RetuneCallback func(freqHz uint32)

// Listener binds INADDR_ANY:port and reads 5-byte retune datagrams,
// the same wire layout as the RTL-UDP tuner frame.
type Listener struct {
	conn     *net.UDPConn
	stopFlag atomic.Bool
	callback RetuneCallback
}

func reuseAddrListenConfig() net.ListenConfig {
	return net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
}

// NewListener binds a UDP socket on INADDR_ANY:port with SO_REUSEADDR
// set, so a restart does not have to wait out TIME_WAIT.
func NewListener(port int, callback RetuneCallback) (*Listener, error) {
	lc := reuseAddrListenConfig()
	pc, err := lc.ListenPacket(context.Background(), "udp", udpAnyAddr(port))
	if err != nil {
		return nil, err
	}
	return &Listener{conn: pc.(*net.UDPConn), callback: callback}, nil
}

func udpAnyAddr(port int) string {
	return (&net.UDPAddr{Port: port}).String()
}

// Serve reads datagrams until Stop is called. Intended to be run in
// its own goroutine.
func (l *Listener) Serve() {
	buf := make([]byte, 5)
	for !l.stopFlag.Load() {
		n, _, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if l.stopFlag.Load() {
				return
			}
			log.Warn("control listener read error", "err", err)
			continue
		}
		freq, ok := tuning.DecodeTuneFrame(buf[:n])
		if !ok {
			continue
		}
		if l.callback != nil {
			l.callback(freq)
		}
	}
}

// Stop requests a clean shutdown: the stop flag is set and the socket
// is closed to unblock a pending read.
func (l *Listener) Stop() {
	l.stopFlag.Store(true)
	_ = l.conn.Close()
}
