// Package symbol implements the dibit acquisition pipeline: a soft symbol
// source is sliced into dibits with a reliability score, the slicer
// thresholds adapt to the channel, and a rolling sample history feeds
// sync-driven recalibration.
package symbol

import (
	"sync"
	"sync/atomic"

	"github.com/arancormonk/dsd-neo/internal/logging"
)

var log = logging.For("symbol")

// Modulation selects which slicer geometry applies. GMSK only ever
// compares against the center threshold (it has no +/-3 outer levels).
type Modulation int

const (
	ModC4FM Modulation = iota
	ModQPSK
	ModGMSK
)

// Source produces raw demodulated symbol samples. A false second result
// signals shutdown/EOF.
type Source interface {
	Next() (float32, bool)
}

// Dibit is one decoded symbol: a two-bit code plus its reliability.
type Dibit struct {
	Value       byte
	Reliability uint8
}

// SoftDibit adds the raw demodulated level to a Dibit, for soft-decision
// FEC / Viterbi consumers.
type SoftDibit struct {
	Value byte
	Soft  float32
}

const (
	minHistoryPow2 = 11 // 2^11 = 2048
	minHistory     = 1 << minHistoryPow2
	adaptWindow    = 192
)

// Pipeline is the owning symbol-pipeline state: thresholds, rolling
// history, and modulation-autodetect counters.
type Pipeline struct {
	mu sync.Mutex

	source     Source
	modulation Modulation

	thresholds Thresholds
	tracker    *slicerTracker

	history    []float64
	dibits     []byte
	historyPos int
	historyLen int

	modCounts  [3]int // votes per Modulation
	clampCount atomic.Uint64

	offAir bool
}

// New builds a Pipeline over source with a history window of at least
// 2048 symbols (rounded up to the next power of two).
func New(source Source, modulation Modulation, historySize int) *Pipeline {
	if historySize < minHistory {
		historySize = minHistory
	}
	historySize = nextPow2(historySize)

	p := &Pipeline{
		source:     source,
		modulation: modulation,
		thresholds: NeutralThresholds(),
		tracker:    newSlicerTracker(adaptWindow),
		history:    make([]float64, historySize),
		dibits:     make([]byte, historySize),
	}
	return p
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Thresholds returns a snapshot of the current slicer thresholds.
func (p *Pipeline) Thresholds() Thresholds {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.thresholds
}

// SetOffAir freezes (true) or resumes (false) threshold adaptation, per
// the spec's "Freeze adaptation when the channel is known to be off-air."
func (p *Pipeline) SetOffAir(offAir bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offAir = offAir
	p.tracker.setFrozen(offAir)
}

func (p *Pipeline) recordHistory(sym float64, dibit byte) {
	p.history[p.historyPos] = sym
	p.dibits[p.historyPos] = dibit
	p.historyPos = (p.historyPos + 1) % len(p.history)
	if p.historyLen < len(p.history) {
		p.historyLen++
	}
}

func (p *Pipeline) adapt(sym float64) {
	if p.offAir {
		return
	}
	lo, hi, ready := p.tracker.observe(sym)
	if !ready {
		return
	}
	center := (lo + hi) / 2
	newMin := firstOrderFilter(p.thresholds.Min, lo, p.tracker.filterGain)
	newMax := firstOrderFilter(p.thresholds.Max, hi, p.tracker.filterGain)
	newCenter := firstOrderFilter(p.thresholds.Center, center, p.tracker.filterGain)
	candidate := derive(newMin, newMax, newCenter)
	if candidate.valid() {
		p.thresholds = candidate
	} else {
		log.Warn("rejected adaptive threshold update: invariant would be violated")
	}
}

// next pulls one raw sample from source, records it to history, adapts
// thresholds, and slices it.
func (p *Pipeline) next() (sym float64, dibit byte, ok bool) {
	raw, ok := p.source.Next()
	if !ok {
		return 0, 0, false
	}
	sym = float64(raw)

	p.mu.Lock()
	dibit = p.thresholds.Slice(sym)
	p.recordHistory(sym, dibit)
	p.adapt(sym)
	p.mu.Unlock()

	return sym, dibit, true
}

// NextDibitWithSymbol is NextDibit plus the raw demodulated symbol
// level, for a caller (the decode loop) that must also feed the same
// sample into the frame sync detector.
func (p *Pipeline) NextDibitWithSymbol() (Dibit, float64, bool) {
	sym, dibit, ok := p.next()
	if !ok {
		return Dibit{}, 0, false
	}
	p.mu.Lock()
	rel := p.thresholds.Reliability(sym, dibit)
	p.mu.Unlock()
	return Dibit{Value: dibit, Reliability: rel}, sym, true
}

// NextDibit returns the next dibit with its reliability, or false on
// shutdown/EOF.
func (p *Pipeline) NextDibit() (Dibit, bool) {
	sym, dibit, ok := p.next()
	if !ok {
		return Dibit{}, false
	}
	p.mu.Lock()
	rel := p.thresholds.Reliability(sym, dibit)
	p.mu.Unlock()
	return Dibit{Value: dibit, Reliability: rel}, true
}

// NextDibitSoft returns the next dibit along with the raw demodulated
// level, for soft-decision FEC.
func (p *Pipeline) NextDibitSoft() (SoftDibit, bool) {
	sym, dibit, ok := p.next()
	if !ok {
		return SoftDibit{}, false
	}
	return SoftDibit{Value: dibit, Soft: float32(sym)}, true
}

// SoftCost maps symbol to a 16-bit Viterbi branch metric for the
// requested bit index: 0x0000 confident 0, 0xFFFF confident 1, 0x7FFF
// undecided. GMSK only ever consults the center threshold, regardless of
// bitIndex.
func (p *Pipeline) SoftCost(symbol float32, bitIndex int) uint16 {
	p.mu.Lock()
	t := p.thresholds
	modulation := p.modulation
	p.mu.Unlock()

	sym := float64(symbol)
	spread := (t.Max - t.Min) / 2
	if spread <= 0 {
		spread = 1
	}

	var threshold float64
	switch {
	case modulation == ModGMSK:
		threshold = t.Center
	case bitIndex == 0:
		threshold = t.Center
	default:
		if sym >= t.Center {
			threshold = t.UMid
		} else {
			threshold = t.LMid
		}
	}

	norm := (sym - threshold) / spread
	clamped := norm
	if clamped > 1 {
		clamped = 1
	}
	if clamped < -1 {
		clamped = -1
	}
	if clamped != norm {
		p.clampCount.Add(1)
	}

	scaled := (clamped + 1) / 2 * 65535
	if scaled < 0 {
		scaled = 0
	}
	if scaled > 65535 {
		scaled = 65535
	}
	return uint16(scaled)
}

// ClampCount returns how many SoftCost calls saturated, for the "never
// saturates silently" reporting requirement.
func (p *Pipeline) ClampCount() uint64 {
	return p.clampCount.Load()
}

// Reset drops the buffered history, re-initialises thresholds to the
// neutral state, and clears modulation-autodetect counters.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.history {
		p.history[i] = 0
		p.dibits[i] = 0
	}
	p.historyPos = 0
	p.historyLen = 0
	p.thresholds = NeutralThresholds()
	p.tracker = newSlicerTracker(adaptWindow)
	p.modCounts = [3]int{}
	p.offAir = false
}

// HistorySnapshot returns a copy of the rolling history in chronological
// order (oldest first), for sync-driven recalibration.
func (p *Pipeline) HistorySnapshot() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]float64, p.historyLen)
	if p.historyLen == 0 {
		return out
	}
	start := (p.historyPos - p.historyLen + len(p.history)) % len(p.history)
	for i := 0; i < p.historyLen; i++ {
		out[i] = p.history[(start+i)%len(p.history)]
	}
	return out
}

// RecalibrateFromSync implements sync-driven threshold recalibration: it
// is handed the known +3/-3 symbols of a matched sync pattern (already
// extracted from history with fractional interpolation by the caller),
// and re-derives min/max/center/lmid/umid from their means. If the +3
// mean does not lie above the -3 mean (so the +3/-3 labelling cannot be
// trusted) the thresholds are left unchanged and false is returned, per
// the spec's failure semantics.
func (p *Pipeline) RecalibrateFromSync(plusThreeSymbols, minusThreeSymbols []float64) bool {
	if len(plusThreeSymbols) == 0 || len(minusThreeSymbols) == 0 {
		return false
	}
	maxMean := mean(plusThreeSymbols)
	minMean := mean(minusThreeSymbols)

	if maxMean <= minMean {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	center := (minMean + maxMean) / 2
	if minMean >= center || maxMean <= center {
		return false
	}

	candidate := derive(minMean, maxMean, center)
	if !candidate.valid() {
		return false
	}
	p.thresholds = candidate
	return true
}

// RedigitizeTail re-slices the most recent n samples of the rolling
// history against the pipeline's current (just-recalibrated)
// thresholds, overwriting their corresponding entries in the emitted-
// dibit log in place -- the "re-digitise the preceding CACH + message
// prefix... overwriting stale dibits already enqueued" step that
// follows a successful RecalibrateFromSync. Returns the redigitized
// dibits, oldest first.
func (p *Pipeline) RedigitizeTail(n int) []Dibit {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > p.historyLen {
		n = p.historyLen
	}
	if n <= 0 {
		return nil
	}
	out := make([]Dibit, n)
	start := (p.historyPos - n + len(p.history)) % len(p.history)
	for i := 0; i < n; i++ {
		idx := (start + i) % len(p.history)
		sym := p.history[idx]
		d := p.thresholds.Slice(sym)
		p.dibits[idx] = d
		out[i] = Dibit{Value: d, Reliability: p.thresholds.Reliability(sym, d)}
	}
	return out
}

// RecentDibits returns the last n dibits the pipeline emitted, oldest
// first, reflecting any RedigitizeTail overwrite since they were first
// sliced.
func (p *Pipeline) RecentDibits(n int) []Dibit {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > p.historyLen {
		n = p.historyLen
	}
	if n <= 0 {
		return nil
	}
	out := make([]Dibit, n)
	start := (p.historyPos - n + len(p.history)) % len(p.history)
	for i := 0; i < n; i++ {
		idx := (start + i) % len(p.history)
		sym := p.history[idx]
		d := p.dibits[idx]
		out[i] = Dibit{Value: d, Reliability: p.thresholds.Reliability(sym, d)}
	}
	return out
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

// FractionalExtract pulls count samples starting at the fractional
// history offset startFrac (measured backward from the most recent
// sample, 0 = most recent), using linear interpolation between adjacent
// history entries.
func (p *Pipeline) FractionalExtract(startFrac float64, count int) []float64 {
	hist := p.HistorySnapshot()
	if len(hist) == 0 {
		return nil
	}
	// hist is oldest-first; convert a "back from most recent" offset into
	// a forward index into hist.
	fwd := float64(len(hist)-1) - startFrac
	return fractionalInterp(hist, fwd, count)
}
