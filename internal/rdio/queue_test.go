package rdio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arancormonk/dsd-neo/internal/geoloc"
)

func TestQueueFIFOOrder(t *testing.T) {
	q := NewQueue()
	q.Enqueue(NewJob(Call{Talkgroup: 1}, "a.wav"))
	q.Enqueue(NewJob(Call{Talkgroup: 2}, "b.wav"))

	job, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "a.wav", job.WAVPath)
}

func TestQueueOverflowDropsNewest(t *testing.T) {
	q := NewQueue()
	for i := 0; i < QueueCapacity; i++ {
		require.True(t, q.Enqueue(NewJob(Call{}, "existing.wav")))
	}
	ok := q.Enqueue(NewJob(Call{}, "overflow.wav"))
	assert.False(t, ok)
	assert.Equal(t, uint64(1), q.Dropped())
	assert.Equal(t, QueueCapacity, q.Len())

	job, _ := q.Dequeue()
	assert.Equal(t, "existing.wav", job.WAVPath, "the oldest job must survive an overflow, not be evicted")
}

func TestQueueDequeueEmptyReturnsFalse(t *testing.T) {
	q := NewQueue()
	_, ok := q.Dequeue()
	assert.False(t, ok)
}

func TestNewJobAssignsDistinctIDs(t *testing.T) {
	a := NewJob(Call{}, "a.wav")
	b := NewJob(Call{}, "b.wav")
	assert.NotEqual(t, a.ID, b.ID)
}

func TestEnqueueTracksLocationAcrossImplausibleJump(t *testing.T) {
	q := NewQueue()
	near := Call{Talkgroup: 7, StartTime: 1000}.WithLocation(geoloc.Location{LatDeg: 40.0, LonDeg: -75.0})
	far := Call{Talkgroup: 7, StartTime: 1060}.WithLocation(geoloc.Location{LatDeg: 51.5, LonDeg: -0.1})

	require.True(t, q.Enqueue(NewJob(near, "near.wav")))
	require.True(t, q.Enqueue(NewJob(far, "far.wav")))

	loc, ok := q.lastLoc[7]
	require.True(t, ok)
	assert.InDelta(t, 51.5, loc.LatDeg, 0.001)
}

func TestCallLocationRoundTrips(t *testing.T) {
	c := Call{Talkgroup: 1}
	_, ok := c.Location()
	assert.False(t, ok, "a call with no decoded GPS fix has no location")

	c = c.WithLocation(geoloc.Location{LatDeg: 12.5, LonDeg: -7.25})
	loc, ok := c.Location()
	require.True(t, ok)
	assert.Equal(t, 12.5, loc.LatDeg)
	assert.Equal(t, -7.25, loc.LonDeg)
}

func TestParseModeRoundTrips(t *testing.T) {
	cases := map[string]Mode{"off": ModeOff, "dirwatch": ModeDirwatch, "api": ModeAPI, "both": ModeBoth}
	for s, want := range cases {
		got, err := ParseMode(s)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("bogus")
	assert.Error(t, err)
}
