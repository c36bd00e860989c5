package trunk

import "sync"

// ccCapacity is the bounded size of the control-channel candidate set.
const ccCapacity = 16

// ccRing is a fixed-capacity, dedup-by-frequency ring of CC candidate
// frequencies with per-entry cooldown deadlines. Insertion past
// capacity evicts the oldest entry. The current CC frequency is never
// surfaced by Next.
type ccRing struct {
	mu       sync.Mutex
	freqs    [ccCapacity]uint64
	cooldown [ccCapacity]int64 // unix nanos; 0 = no cooldown
	count    int
	start    int // index of oldest entry
	cursor   int // iteration cursor, relative to start
}

func newCCRing() *ccRing {
	return &ccRing{}
}

func (r *ccRing) index(offset int) int {
	return (r.start + offset) % ccCapacity
}

// Add inserts freqHz if not already present. If the ring is full, the
// oldest entry is evicted first and the iteration cursor is adjusted
// so no candidate is skipped.
func (r *ccRing) Add(freqHz uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < r.count; i++ {
		if r.freqs[r.index(i)] == freqHz {
			return
		}
	}
	if r.count == ccCapacity {
		r.start = r.index(1)
		r.count--
		if r.cursor > 0 {
			r.cursor--
		}
	}
	r.freqs[r.index(r.count)] = freqHz
	r.cooldown[r.index(r.count)] = 0
	r.count++
}

// AddMany inserts each of freqsHz, used for neighbor_update events that
// carry multiple frequencies at once.
func (r *ccRing) AddMany(freqsHz []uint64) {
	for _, f := range freqsHz {
		r.Add(f)
	}
}

// Len reports the number of candidates currently held.
func (r *ccRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// SetCooldown marks freqHz as unavailable for hunting until deadline
// (unix nanos).
func (r *ccRing) SetCooldown(freqHz uint64, deadlineUnixNano int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < r.count; i++ {
		idx := r.index(i)
		if r.freqs[idx] == freqHz {
			r.cooldown[idx] = deadlineUnixNano
			return
		}
	}
}

// Next returns the next candidate frequency after currentCC, in
// insertion order, skipping currentCC itself and any candidate still
// in cooldown at nowUnixNano. The cursor advances so repeated calls
// round-robin across the set. Returns ok=false if no eligible
// candidate exists.
func (r *ccRing) Next(currentCC uint64, nowUnixNano int64) (freqHz uint64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return 0, false
	}
	for tries := 0; tries < r.count; tries++ {
		idx := r.index(r.cursor)
		f := r.freqs[idx]
		cd := r.cooldown[idx]
		r.cursor = (r.cursor + 1) % r.count
		if f == currentCC {
			continue
		}
		if cd != 0 && nowUnixNano < cd {
			continue
		}
		return f, true
	}
	return 0, false
}

// Contains reports whether freqHz is currently in the set, for tests
// and diagnostics.
func (r *ccRing) Contains(freqHz uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < r.count; i++ {
		if r.freqs[r.index(i)] == freqHz {
			return true
		}
	}
	return false
}
