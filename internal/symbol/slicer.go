package symbol

import "math"

// Thresholds are the five slicer scalars from the spec's data model:
// min < lmid < center < umid < max must hold after every update.
type Thresholds struct {
	Min    float64
	LMid   float64
	Center float64
	UMid   float64
	Max    float64
}

// NeutralThresholds returns the thresholds used by Reset: a symmetric
// +/-3 symbol-unit range with no prior calibration.
func NeutralThresholds() Thresholds {
	return derive(-3, 3, 0)
}

func derive(min, max, center float64) Thresholds {
	return Thresholds{
		Min:    min,
		LMid:   (center + min) / 2,
		Center: center,
		UMid:   (center + max) / 2,
		Max:    max,
	}
}

func (t Thresholds) valid() bool {
	return t.Min < t.LMid && t.LMid < t.Center && t.Center < t.UMid && t.UMid < t.Max
}

// Slice converts a soft symbol to a canonical two-bit dibit code using the
// thresholding rule from the spec: symbol >= center picks the upper half
// (codes 0 or 1), symbol < center picks the lower half (codes 2 or 3).
func (t Thresholds) Slice(symbol float64) byte {
	if symbol >= t.Center {
		if symbol >= t.UMid {
			return 1 // +3
		}
		return 0 // +1
	}
	if symbol < t.LMid {
		return 3 // -3
	}
	return 2 // -1
}

// Reliability returns the 0..255 distance from symbol to the nearest
// slicer decision boundary the dibit was sliced against, 0 at the
// boundary and 255 far from it.
func (t Thresholds) Reliability(symbol float64, dibit byte) uint8 {
	var boundary float64
	switch dibit {
	case 0:
		boundary = t.Center
	case 1:
		boundary = t.UMid
	case 2:
		boundary = t.Center
	case 3:
		boundary = t.LMid
	}
	span := t.Max - t.Min
	if span <= 0 {
		return 0
	}
	dist := math.Abs(symbol-boundary) / span
	v := int(dist * 255 * 4) // empirically scaled; boundary-adjacent symbols are common
	if v > 255 {
		v = 255
	}
	if v < 0 {
		v = 0
	}
	return uint8(v)
}

// slicerTracker runs the adaptive threshold tracker over the last M
// symbols: robust 10th/90th percentile order statistics tracked toward
// with a first-order filter.
type slicerTracker struct {
	window     []float64
	windowSize int
	pos        int
	filled     bool
	frozen     bool

	filterGain float64
}

func newSlicerTracker(windowSize int) *slicerTracker {
	if windowSize < 2 {
		windowSize = 2
	}
	return &slicerTracker{
		window:     make([]float64, windowSize),
		windowSize: windowSize,
		filterGain: 0.05,
	}
}

func (s *slicerTracker) setFrozen(frozen bool) { s.frozen = frozen }

// observe records a new raw symbol and, once the window has filled,
// returns updated (min, max) estimates toward the 10th/90th percentile.
func (s *slicerTracker) observe(symbol float64) (min, max float64, ready bool) {
	s.window[s.pos] = symbol
	s.pos++
	if s.pos >= s.windowSize {
		s.pos = 0
		s.filled = true
	}
	if !s.filled || s.frozen {
		return 0, 0, false
	}

	sorted := make([]float64, s.windowSize)
	copy(sorted, s.window)
	insertionSort(sorted)

	lo := percentile(sorted, 0.10)
	hi := percentile(sorted, 0.90)
	return lo, hi, true
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func insertionSort(v []float64) {
	for i := 1; i < len(v); i++ {
		key := v[i]
		j := i - 1
		for j >= 0 && v[j] > key {
			v[j+1] = v[j]
			j--
		}
		v[j+1] = key
	}
}

// firstOrderFilter nudges current toward target by gain (0..1).
func firstOrderFilter(current, target, gain float64) float64 {
	return current + (target-current)*gain
}
