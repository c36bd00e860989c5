package symbol

import (
	resampler "github.com/tphakala/go-audio-resampler"
)

// fractionalInterp re-samples the 24 (or protocol-specific) symbols of a
// detected sync pattern out of the rolling history buffer using
// fractional-sample linear interpolation, as required for sync-driven
// slicer recalibration. It wraps go-audio-resampler's linear resampler so
// the same library used for inter-symbol resampling elsewhere in the
// pipeline backs this path too, rather than a second hand-rolled
// interpolator.
func fractionalInterp(history []float64, startFrac float64, count int) []float64 {
	if count <= 0 || len(history) == 0 {
		return nil
	}

	in := make([]float32, len(history))
	for i, v := range history {
		in[i] = float32(v)
	}

	r := resampler.NewLinear(1.0)
	out := r.Process(in)

	base := int(startFrac)
	frac := startFrac - float64(base)
	result := make([]float64, count)
	for i := 0; i < count; i++ {
		idx := base + i
		if idx+1 >= len(out) || idx < 0 {
			if idx >= 0 && idx < len(out) {
				result[i] = float64(out[idx])
			}
			continue
		}
		a, b := float64(out[idx]), float64(out[idx+1])
		result[i] = a + (b-a)*frac
	}
	return result
}

// ResampleRatio computes the resample ratio for timing recovery given a
// measured samples-per-symbol estimate and the nominal (design) value.
func ResampleRatio(measuredSamplesPerSymbol, nominalSamplesPerSymbol float64) float64 {
	if measuredSamplesPerSymbol <= 0 {
		return 1.0
	}
	return nominalSamplesPerSymbol / measuredSamplesPerSymbol
}

// ResampleOnSync resamples a raw sample window to the nominal rate using
// the ratio computed from a detected sync event's measured timing,
// decoupling the consumer from small clock drift between sync hits.
func ResampleOnSync(samples []float32, ratio float64) []float32 {
	if len(samples) == 0 {
		return nil
	}
	r := resampler.NewLinear(ratio)
	return r.Process(samples)
}
