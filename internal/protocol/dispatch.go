// Package protocol routes sync events from the frame sync detector to
// a per-protocol decode handler, tracks per-protocol decode error
// counters, and forwards the signalling subset of events (grants,
// voice activity, CC loss) into the trunking state machine through a
// narrow capability interface -- never importing internal/trunk
// directly, so the two packages cannot form an import cycle.
package protocol

import (
	"sync"
	"time"

	"github.com/arancormonk/dsd-neo/internal/errtag"
	"github.com/arancormonk/dsd-neo/internal/logging"
	"github.com/arancormonk/dsd-neo/internal/syncdetect"
)

var log = logging.For("protocol")

// Name identifies a protocol decoder, matching syncdetect pattern
// table's Protocol field (e.g. "P25P1", "DMR", "NXDN").
type Name string

// Handler decodes the frame that follows a matched sync event for one
// protocol. Implementations own their own bit-level decode state;
// this package only routes to them and counts outcomes.
type Handler interface {
	HandleSync(ev syncdetect.SyncEvent, now time.Time) error
}

// TrunkEvents is the narrow set of Trunk-SM event methods a protocol
// handler's grant/voice decode drives. internal/trunk.SM satisfies
// this interface structurally.
type TrunkEvents interface {
	Grant(channelID uint16, svcFlags uint8, targetID, sourceID uint32, slotHint int, now time.Time)
	VoicePTT(slot int, now time.Time)
	VoiceActive(slot int, now time.Time)
	VoiceEnd(slot int, now time.Time)
	VoiceIdle(slot int, now time.Time)
	NoSync(now time.Time)
	CCLost(now time.Time)
	NeighborUpdate(freqsHz []uint64)
}

// Counters tracks per-protocol decode error counts, keyed by a
// free-form kind string ("crc", "fec", "unknown_opcode").
type Counters struct {
	mu     sync.Mutex
	counts map[Name]map[string]uint64
}

// NewCounters builds an empty counter set.
func NewCounters() *Counters {
	return &Counters{counts: make(map[Name]map[string]uint64)}
}

// Record increments the counter for protocol/kind.
func (c *Counters) Record(protocol Name, kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.counts[protocol]
	if !ok {
		m = make(map[string]uint64)
		c.counts[protocol] = m
	}
	m[kind]++
}

// Snapshot returns a copy of the current counts.
func (c *Counters) Snapshot() map[Name]map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[Name]map[string]uint64, len(c.counts))
	for p, m := range c.counts {
		cp := make(map[string]uint64, len(m))
		for k, v := range m {
			cp[k] = v
		}
		out[p] = cp
	}
	return out
}

// Dispatcher routes sync events to registered protocol handlers.
type Dispatcher struct {
	mu       sync.Mutex
	handlers map[Name]Handler
	counters *Counters
	trunk    TrunkEvents
}

// NewDispatcher builds a Dispatcher. trunk may be nil, in which case
// handlers may still run but any signalling they emit toward the SM is
// simply unreachable (no decoder is wired without a context, so this
// is a configuration error the caller should avoid in practice).
func NewDispatcher(trunk TrunkEvents) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[Name]Handler),
		counters: NewCounters(),
		trunk:    trunk,
	}
}

// Register installs the handler responsible for protocol.
func (d *Dispatcher) Register(protocol Name, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[protocol] = h
}

// Counters returns the dispatcher's decode error counters.
func (d *Dispatcher) Counters() *Counters {
	return d.counters
}

// Trunk returns the narrow Trunk-SM event sink handlers should call
// into, or nil if none was wired.
func (d *Dispatcher) Trunk() TrunkEvents {
	return d.trunk
}

// Dispatch routes ev to the handler registered for its protocol. A
// missing handler is recorded as a decode error under the synthetic
// "unregistered_protocol" kind and otherwise ignored; the frame is
// discarded either way, per the spec's decode-error propagation
// policy (the SM is unaffected unless the error indicates loss of
// sync, which handlers signal explicitly via NoSync).
func (d *Dispatcher) Dispatch(ev syncdetect.SyncEvent, now time.Time) {
	d.mu.Lock()
	h, ok := d.handlers[Name(ev.Protocol)]
	d.mu.Unlock()

	if !ok {
		d.counters.Record(Name(ev.Protocol), "unregistered_protocol")
		log.Warn("no handler registered", "protocol", ev.Protocol, "pattern", ev.PatternID)
		return
	}

	if err := h.HandleSync(ev, now); err != nil {
		kind := "decode_error"
		if tagged, ok := err.(*errtag.Error); ok {
			kind = tagged.Kind.String()
		}
		d.counters.Record(Name(ev.Protocol), kind)
		log.Debug("decode error", "protocol", ev.Protocol, "err", err)
	}
}
