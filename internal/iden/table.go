// Package iden implements the IDEN table: up to 16 entries mapping a
// 4-bit channel identifier to a base frequency, channel spacing, and TDMA
// flag, plus the trust ladder that governs when a channel_id is
// considered resolvable for a grant.
package iden

import "fmt"

// Trust levels form a strict ladder: unknown -> provisional -> confirmed.
// Entries are only ever promoted by corroborating evidence and demoted
// back to provisional on a provenance mismatch; they are never silently
// dropped below provisional once observed, matching the reset rule below.
type Trust int

const (
	Unknown Trust = iota
	Provisional
	Confirmed
)

func (t Trust) String() string {
	switch t {
	case Unknown:
		return "unknown"
	case Provisional:
		return "provisional"
	case Confirmed:
		return "confirmed"
	default:
		return "invalid"
	}
}

const MaxEntries = 16

// Entry is one IDEN table row. Frequencies are stored in 5 kHz units, as
// the over-the-air IDEN_UP messages encode them.
type Entry struct {
	Type          string
	TDMA          bool
	BaseFreq5kHz  uint32
	Spacing5kHz   uint32
	OffsetSign    int8 // -1, 0, +1
	OffsetMag5kHz uint32
	Trust         Trust
}

// FreqHz returns the channel's center frequency in Hz for the given
// 12-bit channel number within this IDEN entry.
func (e Entry) FreqHz(channel uint16) uint64 {
	base := uint64(e.BaseFreq5kHz) * 5000
	step := uint64(e.Spacing5kHz) * 5000 * uint64(channel)
	freq := base + step
	if e.OffsetSign != 0 {
		offset := uint64(e.OffsetMag5kHz) * 5000
		if e.OffsetSign < 0 {
			if offset > freq {
				freq = 0
			} else {
				freq -= offset
			}
		} else {
			freq += offset
		}
	}
	return freq
}

// Table is the 16-entry IDEN table, keyed by 4-bit identifier.
type Table struct {
	entries      [MaxEntries]*Entry
	wacnSysID    uint64
	haveIdentity bool
}

// NewTable builds an empty IDEN table.
func NewTable() *Table {
	return &Table{}
}

// Set installs or replaces an IDEN entry, starting it at Unknown trust
// unless the caller already knows better (use Promote/Demote afterward).
func (t *Table) Set(index uint8, e Entry) error {
	if index >= MaxEntries {
		return fmt.Errorf("iden: index %d out of range [0,%d)", index, MaxEntries)
	}
	cp := e
	t.entries[index] = &cp
	return nil
}

// Get returns the entry at index, or (Entry{}, false) if unset.
func (t *Table) Get(index uint8) (Entry, bool) {
	if index >= MaxEntries || t.entries[index] == nil {
		return Entry{}, false
	}
	return *t.entries[index], true
}

// Resolve decodes a 16-bit channel_id (high nibble = IDEN index, low 12
// bits = channel number) into a frequency, if the IDEN index is
// populated.
func (t *Table) Resolve(channelID uint16) (freqHz uint64, trust Trust, ok bool) {
	idx := uint8(channelID >> 12)
	channel := channelID & 0x0FFF
	e, present := t.Get(idx)
	if !present {
		return 0, Unknown, false
	}
	return e.FreqHz(channel), e.Trust, true
}

// Promote advances an entry's trust toward Confirmed. It never skips a
// rung: Unknown -> Provisional -> Confirmed, one step per call.
func (t *Table) Promote(index uint8) {
	if index >= MaxEntries || t.entries[index] == nil {
		return
	}
	switch t.entries[index].Trust {
	case Unknown:
		t.entries[index].Trust = Provisional
	case Provisional:
		t.entries[index].Trust = Confirmed
	}
}

// PromoteIfProvenanceMatches promotes index toward Confirmed only when
// channel's resolved frequency falls within one channel-spacing step of
// confirmedSiteFreqHz -- the site-provenance heuristic the spec's Open
// Questions section leaves undecided. A mismatch demotes a previously
// Confirmed entry back to Provisional rather than dropping it further.
func (t *Table) PromoteIfProvenanceMatches(index uint8, channel uint16, confirmedSiteFreqHz uint64) {
	if index >= MaxEntries || t.entries[index] == nil {
		return
	}
	e := t.entries[index]
	freq := e.FreqHz(channel)
	step := uint64(e.Spacing5kHz) * 5000
	if step == 0 {
		step = 5000
	}

	var delta uint64
	if freq > confirmedSiteFreqHz {
		delta = freq - confirmedSiteFreqHz
	} else {
		delta = confirmedSiteFreqHz - freq
	}

	if delta <= step {
		t.Promote(index)
	} else {
		t.Demote(index)
	}
}

// Demote steps an entry back down to Provisional on a site-provenance
// mismatch. It never demotes below Provisional: a once-observed IDEN
// entry is not re-treated as wholly unknown short of a system identity
// change.
func (t *Table) Demote(index uint8) {
	if index >= MaxEntries || t.entries[index] == nil {
		return
	}
	if t.entries[index].Trust == Confirmed {
		t.entries[index].Trust = Provisional
	}
}

// SetSystemIdentity records the current WACN/SysID pair, clearing the
// whole table if it differs from the previously recorded identity.
func (t *Table) SetSystemIdentity(wacn, sysID uint32) {
	id := uint64(wacn)<<32 | uint64(sysID)
	if t.haveIdentity && id == t.wacnSysID {
		return
	}
	t.wacnSysID = id
	t.haveIdentity = true
	t.Reset()
}

// Reset clears the table wholesale.
func (t *Table) Reset() {
	for i := range t.entries {
		t.entries[i] = nil
	}
}
