// Package dsdctx owns the single process-wide decoder context: the
// symbol pipeline, frame sync detector, IDEN table, Trunk-SM, jitter
// rings/gate, protocol dispatcher, and tuning dispatcher. Everything
// else in the process holds a non-owning reference into this context;
// the control-plane sockets and watchdog thread are handed the same
// instance rather than duplicating state.
package dsdctx

import (
	"sync"
	"time"

	"github.com/arancormonk/dsd-neo/internal/iden"
	"github.com/arancormonk/dsd-neo/internal/jitter"
	"github.com/arancormonk/dsd-neo/internal/logging"
	"github.com/arancormonk/dsd-neo/internal/protocol"
	"github.com/arancormonk/dsd-neo/internal/symbol"
	"github.com/arancormonk/dsd-neo/internal/syncdetect"
	"github.com/arancormonk/dsd-neo/internal/trunk"
	"github.com/arancormonk/dsd-neo/internal/tuning"
)

var log = logging.For("dsdctx")

// Context is the owning decoder context described in the lifecycle
// design note: created at startup, torn down at shutdown, reset as
// one atomic step whenever the operator retunes to a new system.
type Context struct {
	mu sync.Mutex

	Pipeline *symbol.Pipeline
	Sync     *syncdetect.Detector
	Iden     *iden.Table
	Trunk    *trunk.SM
	Jitter   *jitter.Slots
	Dispatch *protocol.Dispatcher
	Tuning   *tuning.Dispatcher
}

// Options seeds the context's owned components. Callers pass nil for
// any tuning backend they have not configured; tuning.Dispatcher
// tolerates all three being nil (TuneVC/TuneCC then fail with a
// config-tagged error, which the Trunk-SM treats as a failed tune).
type Options struct {
	Source      symbol.Source
	Modulation  symbol.Modulation
	HistorySize int
	TrunkConfig trunk.Config
	TrunkPolicy trunk.Policy
	CurrentCCHz uint64
	DirectTune  tuning.DirectFunc
	RigctlAddr  string
	RTLUDPPort  int
}

// New builds a Context, wiring the tuning dispatcher into the
// Trunk-SM's TuneAction/ReleaseAction hooks and the Trunk-SM into the
// protocol dispatcher's event sink.
func New(opts Options) (*Context, error) {
	pipeline := symbol.New(opts.Source, opts.Modulation, opts.HistorySize)
	sync := syncdetect.NewDetector()
	identable := iden.NewTable()
	slots := jitter.NewSlots()

	tuneDispatch := &tuning.Dispatcher{}
	if opts.DirectTune != nil {
		tuneDispatch.Direct = tuning.NewDirectTuner(opts.DirectTune)
	}
	if opts.RigctlAddr != "" {
		tuneDispatch.Rigctl = tuning.NewRigctlClient(opts.RigctlAddr)
	}
	if opts.RTLUDPPort != 0 {
		rtl, err := tuning.NewRTLUDPTuner(opts.RTLUDPPort)
		if err != nil {
			return nil, err
		}
		tuneDispatch.RTLUDP = rtl
	}

	hooks := trunk.Hooks{
		Tune:    tuneDispatch,
		Release: releaseHook{slots: slots},
		Gate:    gateHook{slots: slots},
	}
	sm := trunk.NewSM(opts.TrunkConfig, opts.TrunkPolicy, hooks, identable, opts.CurrentCCHz)

	dispatch := protocol.NewDispatcher(sm)

	return &Context{
		Pipeline: pipeline,
		Sync:     sync,
		Iden:     identable,
		Trunk:    sm,
		Jitter:   slots,
		Dispatch: dispatch,
		Tuning:   tuneDispatch,
	}, nil
}

// releaseHook adapts jitter.Slots into trunk.ReleaseAction: returning
// to the control channel closes every active voice gate.
type releaseHook struct {
	slots *jitter.Slots
}

func (r releaseHook) Release() error {
	r.slots.Gate.CloseAll()
	return nil
}

// gateHook adapts jitter.Slots' gate into trunk.AudioGateAction: a
// slot that isn't already open gets a fresh MAC_PTT-style open, one
// that's already open just has its hold refreshed (MAC_ACTIVE).
type gateHook struct {
	slots *jitter.Slots
}

func (g gateHook) SetAudioGate(slot int, allowed bool, now time.Time, hold time.Duration) {
	if !allowed {
		g.slots.Gate.Close(slot)
		return
	}
	if g.slots.Gate.Allowed(slot, now) {
		g.slots.Gate.RefreshActive(slot, now, hold)
		return
	}
	g.slots.Gate.SetPTT(slot, now, hold)
}

// Reset clears IDEN table, sync detector modulation state, and jitter
// rings, and closes the audio gate on both slots, in one atomic step,
// per the lifecycle design note's tune-to-new-system rule.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Iden.Reset()
	c.Sync.ResetModState()
	c.Pipeline.Reset()
	c.Jitter.ResetAll()
	c.Jitter.Gate.CloseAll()
	log.Info("decoder context reset for new system")
}

// Tick drives the Trunk-SM's watchdog timeout checks. Satisfies
// internal/control.Ticker structurally.
func (c *Context) Tick(now time.Time) {
	c.Trunk.Tick(now)
}

// cachPrefixSymbols gives the number of preceding symbols sync-driven
// recalibration re-digitises beyond the sync pattern itself, per
// spec.md's "re-digitise the preceding CACH + message prefix (66
// symbols for DMR, analogous for other protocols)". Only DMR's figure
// survived the distillation; other protocols redigitise just the
// matched sync pattern itself until their own prefix lengths are
// specified.
var cachPrefixSymbols = map[string]int{
	"DMR": 66,
}

// recalibrateFromSync implements the sync-driven calibration step: it
// extracts the known +3/-3 symbols of the matched pattern from the
// pipeline's sample history, re-derives the slicer thresholds from
// their means, and -- only on success -- re-slices the preceding CACH
// + message prefix with the new thresholds, overwriting the stale
// dibits already recorded in the pipeline's emitted-dibit log.
func (c *Context) recalibrateFromSync(ev syncdetect.SyncEvent) {
	tmpl, ok := syncdetect.PatternTemplate(ev.PatternID, ev.Polarity)
	if !ok || len(tmpl) == 0 {
		return
	}

	if len(c.Pipeline.HistorySnapshot()) < len(tmpl) {
		return
	}
	tail := c.Pipeline.FractionalExtract(float64(len(tmpl)-1), len(tmpl))

	var plus, minus []float64
	for i, v := range tmpl {
		switch v {
		case 3:
			plus = append(plus, tail[i])
		case -3:
			minus = append(minus, tail[i])
		}
	}

	if !c.Pipeline.RecalibrateFromSync(plus, minus) {
		return
	}

	redigitize := len(tmpl) + cachPrefixSymbols[ev.Protocol]
	c.Pipeline.RedigitizeTail(redigitize)
}

// RunDecodeLoop is the decoder/dispatcher thread of the scheduling
// model: it pulls dibits from the symbol pipeline, feeds each raw
// sample to the frame sync detector, recalibrates the pipeline's
// thresholds on every sync match, and routes the resulting event to
// the protocol dispatcher. It returns when the source is exhausted.
func (c *Context) RunDecodeLoop(now func() time.Time) {
	for {
		_, sym, ok := c.Pipeline.NextDibitWithSymbol()
		if !ok {
			return
		}
		ev := c.Sync.Push(sym)
		if ev == nil {
			continue
		}
		c.recalibrateFromSync(*ev)
		c.Dispatch.Dispatch(*ev, now())
	}
}
