package tuning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/arancormonk/dsd-neo/internal/errtag"
)

func TestDispatcherPrefersDirectOverOthers(t *testing.T) {
	var got uint64
	direct := NewDirectTuner(func(freqHz uint64) error { got = freqHz; return nil })
	d := &Dispatcher{Direct: direct, Rigctl: NewRigctlClient("127.0.0.1:1")}

	require.NoError(t, d.TuneVC(851012500, 0))
	assert.Equal(t, uint64(851012500), got)
}

func TestDispatcherFallsBackToRigctlWhenNoDirect(t *testing.T) {
	d := &Dispatcher{Rigctl: NewRigctlClient("127.0.0.1:1")}
	err := d.TuneVC(1, 0) // no listener at that address: expect a transient error, not a panic
	assert.Error(t, err)
}

func TestDispatcherErrorsWithNoBackendConfigured(t *testing.T) {
	d := &Dispatcher{}
	err := d.TuneCC(1)
	assert.Error(t, err)
}

func TestDispatcherRateLimitsRapidRetunes(t *testing.T) {
	direct := NewDirectTuner(func(freqHz uint64) error { return nil })
	d := &Dispatcher{Direct: direct, Limiter: rate.NewLimiter(1, 1)}

	require.NoError(t, d.TuneVC(1, 0))
	err := d.TuneVC(2, 0)
	require.Error(t, err)
	assert.True(t, errtag.Is(err, errtag.Transient))
}
