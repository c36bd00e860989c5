package tuning

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/arancormonk/dsd-neo/internal/errtag"
	"github.com/arancormonk/dsd-neo/internal/logging"
)

var rigctlLog = logging.For("tuning.rigctl")

// DefaultRigctlTimeout is the spec's bounded receive timeout.
const DefaultRigctlTimeout = 1500 * time.Millisecond

// RigctlClient speaks the rigctl ASCII TCP protocol: commands
// terminated by '\n', responses a value line and/or "RPRT <code>".
// Connection failure is non-fatal -- callers get an error back and
// decide what to do next (the SM treats a failed tune per its
// documented failure semantics).
type RigctlClient struct {
	mu      sync.Mutex
	addr    string
	timeout time.Duration

	conn net.Conn
	r    *bufio.Reader

	haveLastFreq bool
	lastFreqHz   uint64
	haveLastBW   bool
	lastBWHz     uint32
	haveLastSQL  bool
	lastSQLdB    float64
}

// NewRigctlClient builds a client targeting addr ("host:port"),
// connecting lazily on first use.
func NewRigctlClient(addr string) *RigctlClient {
	return &RigctlClient{addr: addr, timeout: DefaultRigctlTimeout}
}

// SetTimeout overrides the default receive timeout, for tests.
func (c *RigctlClient) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = d
}

func (c *RigctlClient) ensureConnLocked() error {
	if c.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return errtag.Wrap(errtag.Transient, "rigctl dial", err)
	}
	c.conn = conn
	c.r = bufio.NewReader(conn)
	return nil
}

func (c *RigctlClient) sendLocked(cmd string) (string, error) {
	if err := c.ensureConnLocked(); err != nil {
		return "", err
	}
	_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	if _, err := c.conn.Write([]byte(cmd + "\n")); err != nil {
		c.closeLocked()
		return "", errtag.Wrap(errtag.Transient, "rigctl write", err)
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		c.closeLocked()
		return "", errtag.Wrap(errtag.Transient, "rigctl read", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if strings.HasPrefix(line, "RPRT") {
		return "", parseRPRT(line)
	}
	return line, nil
}

func parseRPRT(line string) error {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return errtag.New(errtag.Transient, "malformed RPRT line: "+line)
	}
	if fields[1] == "0" {
		return nil
	}
	return errtag.New(errtag.Transient, fmt.Sprintf("rigctl error RPRT %s", fields[1]))
}

func (c *RigctlClient) closeLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
		c.r = nil
	}
}

// Close releases the underlying connection, if any.
func (c *RigctlClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

// SetFreq sends "F <hz>" unless freqHz matches the last frequency set
// on this client, in which case the wire command is skipped entirely.
func (c *RigctlClient) SetFreq(freqHz uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.haveLastFreq && c.lastFreqHz == freqHz {
		return nil
	}
	if _, err := c.sendLocked(fmt.Sprintf("F %d", freqHz)); err != nil {
		return err
	}
	c.haveLastFreq = true
	c.lastFreqHz = freqHz
	return nil
}

// SetMode sets the demodulation mode and bandwidth, skipping the wire
// command if unchanged. NFM is attempted first; on error FM is tried
// as a fallback, per the rigctl wire contract.
func (c *RigctlClient) SetMode(bwHz uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.haveLastBW && c.lastBWHz == bwHz {
		return nil
	}
	_, err := c.sendLocked(fmt.Sprintf("M NFM %d", bwHz))
	if err != nil {
		rigctlLog.Warn("NFM mode rejected, falling back to FM", "err", err)
		if _, err2 := c.sendLocked(fmt.Sprintf("M FM %d", bwHz)); err2 != nil {
			return err2
		}
	}
	c.haveLastBW = true
	c.lastBWHz = bwHz
	return nil
}

// Freq queries the currently tuned frequency via "f".
func (c *RigctlClient) Freq() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, err := c.sendLocked("f")
	if err != nil {
		return 0, err
	}
	var hz uint64
	if _, err := fmt.Sscanf(strings.TrimSpace(resp), "%d", &hz); err != nil {
		return 0, errtag.Wrap(errtag.Transient, "rigctl parse freq", err)
	}
	return hz, nil
}

// Squelch queries the current squelch level via "l SQL".
func (c *RigctlClient) Squelch() (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, err := c.sendLocked("l SQL")
	if err != nil {
		return 0, err
	}
	var dB float64
	if _, err := fmt.Sscanf(strings.TrimSpace(resp), "%g", &dB); err != nil {
		return 0, errtag.Wrap(errtag.Transient, "rigctl parse squelch", err)
	}
	return dB, nil
}

// SetSquelch sends "L SQL <dB>", skipping the wire command if dB
// matches the last value set on this client.
func (c *RigctlClient) SetSquelch(dB float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.haveLastSQL && c.lastSQLdB == dB {
		return nil
	}
	if _, err := c.sendLocked(fmt.Sprintf("L SQL %g", dB)); err != nil {
		return err
	}
	c.haveLastSQL = true
	c.lastSQLdB = dB
	return nil
}
