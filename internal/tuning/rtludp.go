package tuning

import (
	"net"
	"strconv"
	"sync"

	"github.com/arancormonk/dsd-neo/internal/errtag"
)

// RTLUDPTuner sends the 5-byte RTL-SDR retune command frame to a UDP
// listener on 127.0.0.1:port: byte0=0x00, byte1..4 = freqHz as
// little-endian uint32.
type RTLUDPTuner struct {
	mu         sync.Mutex
	conn       net.Conn
	haveLast   bool
	lastFreqHz uint64
}

// NewRTLUDPTuner builds a tuner targeting 127.0.0.1:port. The
// underlying UDP socket is dialed here, before the first use.
func NewRTLUDPTuner(port int) (*RTLUDPTuner, error) {
	conn, err := net.Dial("udp", udpAddr(port))
	if err != nil {
		return nil, errtag.Wrap(errtag.Transient, "rtl-udp dial", err)
	}
	return &RTLUDPTuner{conn: conn}, nil
}

func udpAddr(port int) string {
	return "127.0.0.1:" + strconv.Itoa(port)
}

// SetFreq sends the 5-byte tune frame unless freqHz matches the last
// frequency sent.
func (t *RTLUDPTuner) SetFreq(freqHz uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.haveLast && t.lastFreqHz == freqHz {
		return nil
	}
	frame := EncodeTuneFrame(uint32(freqHz))
	if _, err := t.conn.Write(frame[:]); err != nil {
		return errtag.Wrap(errtag.Transient, "rtl-udp write", err)
	}
	t.haveLast = true
	t.lastFreqHz = freqHz
	return nil
}

// Close releases the underlying socket.
func (t *RTLUDPTuner) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.Close()
}

// EncodeTuneFrame builds the 5-byte wire frame for freqHz.
func EncodeTuneFrame(freqHz uint32) [5]byte {
	return [5]byte{
		0x00,
		byte(freqHz),
		byte(freqHz >> 8),
		byte(freqHz >> 16),
		byte(freqHz >> 24),
	}
}

// DecodeTuneFrame parses a 5-byte wire frame. ok is false if byte0 is
// not 0x00 (reserved) or frame is the wrong length.
func DecodeTuneFrame(frame []byte) (freqHz uint32, ok bool) {
	if len(frame) != 5 || frame[0] != 0x00 {
		return 0, false
	}
	return uint32(frame[1]) | uint32(frame[2])<<8 | uint32(frame[3])<<16 | uint32(frame[4])<<24, true
}
