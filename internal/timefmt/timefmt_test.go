package timefmt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatKnownLayouts(t *testing.T) {
	ts := time.Date(2026, 7, 31, 14, 5, 9, 0, time.UTC)

	assert.Equal(t, "20260731", Format(LayoutYYYYMMDD, ts))
	assert.Equal(t, "2026-07-31", Format(LayoutISODate, ts))
	assert.Equal(t, "2026/07/31", Format(LayoutSlashDate, ts))
	assert.Equal(t, "140509", Format(LayoutHHMMSS, ts))
	assert.Equal(t, "14:05:09", Format(LayoutColonClock, ts))
}

func TestFormatUnknownLayoutFallsBackToRFC3339(t *testing.T) {
	ts := time.Date(2026, 7, 31, 14, 5, 9, 0, time.UTC)
	out := Format(Layout("%q-not-a-real-directive"), ts)
	assert.NotEmpty(t, out)
}

func TestStampContainsDateAndClock(t *testing.T) {
	ts := time.Date(2026, 7, 31, 14, 5, 9, 0, time.UTC)
	s := Stamp(ts)
	assert.Contains(t, s, "2026-07-31")
	assert.Contains(t, s, "14:05:09")
}

func TestUnixMillisMatchesStdlib(t *testing.T) {
	ts := time.Date(2026, 7, 31, 14, 5, 9, 0, time.UTC)
	assert.Equal(t, ts.UnixMilli(), UnixMillis(ts))
}

func TestLocalOffsetNeverEmpty(t *testing.T) {
	off := LocalOffset(time.Now())
	assert.Len(t, off, 5)
	assert.Contains(t, "+-", string(off[0]))
}
