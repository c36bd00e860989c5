package tuning

import (
	"golang.org/x/time/rate"

	"github.com/arancormonk/dsd-neo/internal/errtag"
)

// freqSetter is the common shape of all three tuning backends.
type freqSetter interface {
	SetFreq(freqHz uint64) error
}

// defaultRetuneRate bounds how often the dispatcher will issue a wire
// tune command, independent of backend: a flapping grant/release cycle
// should not be able to hammer rigctl or an RTL-UDP listener faster
// than a real radio could retune anyway.
const defaultRetuneRate = 20 // per second

// Dispatcher picks the available tuning backend, preferring an
// in-process direct stream over rigctl over RTL-UDP, and exposes the
// shape internal/trunk.TuneAction expects. TuneVC and TuneCC both
// resolve to the same backend selection; the distinction between
// "tuned for voice" and "tuned for CC monitoring" is tracked by the
// Trunk-SM itself, not by the tuning backend.
type Dispatcher struct {
	Direct *DirectTuner
	Rigctl *RigctlClient
	RTLUDP *RTLUDPTuner

	// Limiter caps the wire tune command rate. A zero-value Dispatcher
	// lazily gets one at defaultRetuneRate on first use.
	Limiter *rate.Limiter
}

func (d *Dispatcher) limiter() *rate.Limiter {
	if d.Limiter == nil {
		d.Limiter = rate.NewLimiter(rate.Limit(defaultRetuneRate), defaultRetuneRate)
	}
	return d.Limiter
}

func (d *Dispatcher) backend() freqSetter {
	if d.Direct != nil {
		return d.Direct
	}
	if d.Rigctl != nil {
		return d.Rigctl
	}
	if d.RTLUDP != nil {
		return d.RTLUDP
	}
	return nil
}

func (d *Dispatcher) tuneToFreq(freqHz uint64) error {
	b := d.backend()
	if b == nil {
		return errtag.New(errtag.Config, "no tuning backend configured")
	}
	if !d.limiter().Allow() {
		return errtag.New(errtag.Transient, "retune rate limit exceeded")
	}
	return b.SetFreq(freqHz)
}

// TuneVC tunes to a voice-channel frequency. slotHint is accepted for
// interface compatibility but unused by the backend selection itself.
func (d *Dispatcher) TuneVC(freqHz uint64, slotHint int) error {
	return d.tuneToFreq(freqHz)
}

// TuneCC tunes back to a control-channel frequency.
func (d *Dispatcher) TuneCC(freqHz uint64) error {
	return d.tuneToFreq(freqHz)
}
