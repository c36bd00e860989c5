// Package syncdetect matches a sliding window of demodulated symbols
// against the closed set of known sync patterns (normal and
// polarity-inverted), emitting a typed sync event on a match.
package syncdetect

import (
	"github.com/arancormonk/dsd-neo/internal/logging"
)

var log = logging.For("syncdetect")

// Polarity is the detected symbol polarity relative to a pattern's
// canonical definition.
type Polarity int

const (
	Normal Polarity = iota
	Inverted
)

// SyncEvent is emitted at most once per detected match.
type SyncEvent struct {
	Protocol        string
	Polarity        Polarity
	PatternID       string
	BufferOffset    int
	ModulationLabel string
}

const pollVoteHistory = 8

// Detector holds the rolling symbol buffer and per-pattern cooldown
// state. It is mostly stateless: only the cooldown counters and the
// sticky polarity vote persist across calls to Push.
type Detector struct {
	buf       []float64
	bufLen    int
	bufPos    int
	bufOffset int // count of symbols ever pushed, monotonically increasing

	cooldown map[string]int // pattern id -> symbols remaining before re-fire allowed

	polarityVotes  []Polarity
	stickyPolarity Polarity

	lowReliabilityStreak int
}

// NewDetector builds a Detector sized to the longest known pattern.
func NewDetector() *Detector {
	size := longestPatternLen()
	if size < 1 {
		size = 1
	}
	return &Detector{
		buf:      make([]float64, size),
		cooldown: make(map[string]int),
	}
}

// ResetModState clears modulation-vote counters so a fresh channel
// acquisition does not inherit history.
func (d *Detector) ResetModState() {
	d.polarityVotes = nil
	d.stickyPolarity = Normal
	d.lowReliabilityStreak = 0
}

// CurrentPolarity returns the sticky, majority-voted current polarity
// downstream decoders should assume.
func (d *Detector) CurrentPolarity() Polarity {
	return d.stickyPolarity
}

// NotifyLowReliability tells the detector the current symbol had low
// reliability, the signal the spec uses to allow re-matching the same
// pattern during what would otherwise be its cooldown (loss of lock).
func (d *Detector) NotifyLowReliability(low bool) {
	if low {
		d.lowReliabilityStreak++
	} else {
		d.lowReliabilityStreak = 0
	}
}

const lossOfLockStreak = 48

func (d *Detector) lossOfLock() bool {
	return d.lowReliabilityStreak >= lossOfLockStreak
}

// Push feeds one symbol into the sliding window and returns a sync event
// if the tail of the window now matches a known pattern.
func (d *Detector) Push(symbol float64) *SyncEvent {
	d.buf[d.bufPos] = symbol
	d.bufPos = (d.bufPos + 1) % len(d.buf)
	if d.bufLen < len(d.buf) {
		d.bufLen++
	}
	d.bufOffset++

	for id, remaining := range d.cooldown {
		if remaining > 0 {
			d.cooldown[id] = remaining - 1
		}
	}

	var best *Pattern
	var bestInverted bool
	var bestDist int

	for i := range allPatterns {
		p := &allPatterns[i]
		if len(p.symbols) > d.bufLen {
			continue
		}
		tail := d.tail(len(p.symbols))

		if dist := hammingLike(tail, p.symbols); dist <= p.Tolerance {
			if d.inCooldown(p.ID) {
				continue
			}
			if best == nil || len(p.symbols) > len(best.symbols) || (len(p.symbols) == len(best.symbols) && dist < bestDist) {
				best, bestInverted, bestDist = p, false, dist
			}
		}
		if p.Inverted {
			if dist := hammingLike(tail, p.invertedSymbols); dist <= p.Tolerance {
				if d.inCooldown(p.ID) {
					continue
				}
				if best == nil || len(p.symbols) > len(best.symbols) || (len(p.symbols) == len(best.symbols) && dist < bestDist) {
					best, bestInverted, bestDist = p, true, dist
				}
			}
		}
	}

	if best == nil {
		return nil
	}

	d.cooldown[best.ID] = best.FramePeriodSymbols
	d.recordPolarityVote(bestInverted)

	ev := &SyncEvent{
		Protocol:        best.Protocol,
		PatternID:       best.ID,
		BufferOffset:    d.bufOffset,
		ModulationLabel: modulationLabel(best.Protocol),
	}
	if bestInverted {
		ev.Polarity = Inverted
	} else {
		ev.Polarity = Normal
	}

	log.Debug("sync match", "pattern", best.ID, "protocol", best.Protocol, "inverted", bestInverted)
	return ev
}

// PatternTemplate returns the canonical known symbol values (+3/+1/-1/-3)
// for the pattern identified by id, in the polarity the event was
// matched under. Sync-driven recalibration uses this to know which
// positions in the sample history are guaranteed +3/-3 symbols.
func PatternTemplate(id string, polarity Polarity) ([]float64, bool) {
	for i := range allPatterns {
		if allPatterns[i].ID != id {
			continue
		}
		if polarity == Inverted {
			return allPatterns[i].invertedSymbols, true
		}
		return allPatterns[i].symbols, true
	}
	return nil, false
}

func (d *Detector) inCooldown(id string) bool {
	remaining, ok := d.cooldown[id]
	if !ok || remaining <= 0 {
		return false
	}
	return !d.lossOfLock()
}

// tail returns the last n pushed symbols in chronological order.
func (d *Detector) tail(n int) []float64 {
	out := make([]float64, n)
	start := (d.bufPos - n + len(d.buf)*2) % len(d.buf)
	for i := 0; i < n; i++ {
		out[i] = d.buf[(start+i)%len(d.buf)]
	}
	return out
}

func hammingLike(window, pattern []float64) int {
	if len(window) != len(pattern) {
		return len(pattern) + 1
	}
	dist := 0
	for i := range pattern {
		if window[i] != pattern[i] {
			dist++
		}
	}
	return dist
}

func (d *Detector) recordPolarityVote(inverted bool) {
	v := Normal
	if inverted {
		v = Inverted
	}
	d.polarityVotes = append(d.polarityVotes, v)
	if len(d.polarityVotes) > pollVoteHistory {
		d.polarityVotes = d.polarityVotes[len(d.polarityVotes)-pollVoteHistory:]
	}
	normalCount, invertedCount := 0, 0
	for _, vote := range d.polarityVotes {
		if vote == Inverted {
			invertedCount++
		} else {
			normalCount++
		}
	}
	if invertedCount > normalCount {
		d.stickyPolarity = Inverted
	} else {
		d.stickyPolarity = Normal
	}
}

func modulationLabel(protocol string) string {
	switch protocol {
	case "P25P1", "DMR", "PROVOICE", "PROVOICE_CONV", "EDACS":
		return "C4FM"
	case "P25P2":
		return "QPSK"
	case "NXDN", "DSTAR", "YSF", "DPMR", "M17":
		return "GMSK"
	default:
		return "UNKNOWN"
	}
}
