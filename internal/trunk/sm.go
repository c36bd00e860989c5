// Package trunk implements the Trunk-SM: the voice-channel follow
// lifecycle that decides when to tune away from a trunked control
// channel to follow a voice grant, when to return, and which control
// channel to hunt next if the current one is lost.
package trunk

import (
	"sync"
	"time"

	"github.com/arancormonk/dsd-neo/internal/iden"
	"github.com/arancormonk/dsd-neo/internal/logging"
)

var log = logging.For("trunk")

// State is one of the Trunk-SM's five states.
type State int

const (
	Idle State = iota
	Armed
	FollowingVC
	Hang
	returnCC // transient, collapses to Idle within the same call
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case FollowingVC:
		return "following_vc"
	case Hang:
		return "hang"
	case returnCC:
		return "return_cc"
	default:
		return "unknown"
	}
}

// Config holds the tunable durations and policy toggles the spec lists
// as Trunk-SM config knobs.
type Config struct {
	HangtimeS          float64
	VCGraceS           float64
	MinFollowDwellS    float64
	GrantVoiceTimeoutS float64
	RetuneBackoffS     float64
	AllowDataCalls     bool
	AllowEncCalls      bool
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		HangtimeS:          1.0,
		VCGraceS:           1.5,
		MinFollowDwellS:    0.7,
		GrantVoiceTimeoutS: 4.0,
		RetuneBackoffS:     1.0,
	}
}

// Policy filters grants by target ID before any state transition.
type Policy struct {
	AllowList map[uint32]bool // empty/nil: allow all
	BlockList map[uint32]bool
}

// Allows reports whether targetID passes the configured allow/block
// lists.
func (p Policy) Allows(targetID uint32) bool {
	if p.BlockList[targetID] {
		return false
	}
	if len(p.AllowList) > 0 && !p.AllowList[targetID] {
		return false
	}
	return true
}

// TuneAction dispatches SM tune decisions to the tuning control plane.
type TuneAction interface {
	TuneVC(freqHz uint64, slotHint int) error
	TuneCC(freqHz uint64) error
}

// ReleaseAction returns the radio to control-channel monitoring.
type ReleaseAction interface {
	Release() error
}

// AudioGateAction opens, refreshes, or closes a slot's audio gate.
// now/hold let the implementation distinguish MAC_PTT (open the gate
// and start the hold) from MAC_ACTIVE (refresh an already-open hold)
// the way spec.md's "Set by MAC_PTT and refreshed by MAC_ACTIVE"
// requires; allowed=false (MAC_END or SM release) ignores both.
type AudioGateAction interface {
	SetAudioGate(slot int, allowed bool, now time.Time, hold time.Duration)
}

type noopTune struct{}

func (noopTune) TuneVC(uint64, int) error { return nil }
func (noopTune) TuneCC(uint64) error      { return nil }

type noopRelease struct{}

func (noopRelease) Release() error { return nil }

type noopGate struct{}

func (noopGate) SetAudioGate(int, bool, time.Time, time.Duration) {}

// Hooks bundles the three capability traits the SM calls back
// through, breaking the cyclic dependency between the SM, the
// protocol dispatcher, and the tuning control plane. Unset fields
// default to no-ops, never to a crash.
type Hooks struct {
	Tune    TuneAction
	Release ReleaseAction
	Gate    AudioGateAction
}

func (h Hooks) withDefaults() Hooks {
	if h.Tune == nil {
		h.Tune = noopTune{}
	}
	if h.Release == nil {
		h.Release = noopRelease{}
	}
	if h.Gate == nil {
		h.Gate = noopGate{}
	}
	return h
}

const (
	dataSvcFlag = 0x10
	encSvcFlag  = 0x40
)

// macHold is the MAC hold duration the audio gate uses to bridge a
// missed MAC_ACTIVE: roughly one Phase-2 superframe, long enough that
// a single dropped ACTIVE doesn't audibly clip the call.
const macHold = 180 * time.Millisecond

// tagBackoffIgnoreGrant is the spec's literal tag for a grant dropped
// due to re-tune backoff.
const tagBackoffIgnoreGrant = "min-ignore-grant-backoff"

// SM is the trunking follow state machine. All mutating methods are
// safe for concurrent use; the watchdog and the decoder thread may
// both call Tick and event methods respectively, serialised by an
// internal mutex.
type SM struct {
	mu sync.Mutex

	cfg    Config
	policy Policy
	hooks  Hooks
	iden   *iden.Table
	cc     *ccRing
	tags   *tagRing

	state State

	vcFreqHz    uint64
	vcChannelID uint16
	vcSlotHint  int
	slotActive  [2]bool

	tLastTune      time.Time
	tLastVoice     time.Time
	tFollowStart   time.Time
	tHangStart     time.Time
	tLastReturn    time.Time
	lastReturnFreq uint64
	haveReturned   bool

	currentCC      uint64
	lastCCSyncTime time.Time
	releasePending bool

	failedTuneUntil map[uint64]time.Time
}

// NewSM builds a Trunk-SM starting in Idle, monitoring currentCC.
func NewSM(cfg Config, policy Policy, hooks Hooks, idenTable *iden.Table, currentCC uint64) *SM {
	return &SM{
		cfg:             cfg,
		policy:          policy,
		hooks:           hooks.withDefaults(),
		iden:            idenTable,
		cc:              newCCRing(),
		tags:            newTagRing(),
		state:           Idle,
		currentCC:       currentCC,
		failedTuneUntil: make(map[uint64]time.Time),
	}
}

func (s *SM) tag(text string, now time.Time) {
	s.tags.Push(text, now)
	log.Debug("tag", "tag", text, "state", s.state.String())
}

// State returns the current Trunk-SM state. returnCC is transient and
// is never observed externally; this always reports Idle for it.
func (s *SM) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == returnCC {
		return Idle
	}
	return s.state
}

// VCFreqHz returns the frequency currently being followed, valid in
// Armed/FollowingVC/Hang.
func (s *SM) VCFreqHz() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vcFreqHz
}

// LastReturnFreq returns the frequency most recently released from.
func (s *SM) LastReturnFreq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReturnFreq
}

// SlotActive reports whether slot currently has voice activity.
func (s *SM) SlotActive(slot int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slotActive[slot]
}

// SlotHint returns the slot hint carried by the most recent granted
// tune, for tie-break consultation by the caller.
func (s *SM) SlotHint() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vcSlotHint
}

// Tags returns the most recent diagnostic tags, oldest first.
func (s *SM) Tags() []Tag {
	return s.tags.Recent()
}

// LastReason returns the most recently recorded tag text.
func (s *SM) LastReason() string {
	return s.tags.LastReason()
}

// ReleasePending reports whether a return-to-CC action failed and is
// awaiting retry on the next tick.
func (s *SM) ReleasePending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releasePending
}

// CCCandidates exposes the control-channel candidate ring for the
// protocol dispatcher to populate via NeighborUpdate, and for tests.
func (s *SM) CCCandidates() *ccRing {
	return s.cc
}

// NotifyCCSync records that the control channel was observed in sync
// at now, resetting the cc_lost elapsed-time clock.
func (s *SM) NotifyCCSync(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCCSyncTime = now
}

func backoffActive(until map[uint64]time.Time, freqHz uint64, now time.Time) bool {
	deadline, ok := until[freqHz]
	return ok && now.Before(deadline)
}

// Grant delivers a trunking grant. channelID packs IDEN index (high
// nibble) and channel number (low 12 bits), per the spec's 16-bit
// encoding.
func (s *SM) Grant(channelID uint16, svcFlags uint8, targetID, sourceID uint32, slotHint int, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Idle {
		s.tag("grant-ignored-not-idle", now)
		return
	}
	if svcFlags&dataSvcFlag != 0 && !s.cfg.AllowDataCalls {
		s.tag("policy-reject-data-call", now)
		return
	}
	if svcFlags&encSvcFlag != 0 && !s.cfg.AllowEncCalls {
		s.tag("policy-reject-enc-call", now)
		return
	}
	if !s.policy.Allows(targetID) {
		s.tag("policy-reject-target", now)
		return
	}

	freqHz, _, ok := s.iden.Resolve(channelID)
	if !ok {
		s.tag("policy-reject-iden-unresolved", now)
		return
	}

	if s.haveReturned && freqHz == s.lastReturnFreq &&
		now.Sub(s.tLastReturn).Seconds() < s.cfg.RetuneBackoffS {
		s.tag(tagBackoffIgnoreGrant, now)
		return
	}
	if backoffActive(s.failedTuneUntil, freqHz, now) {
		s.tag(tagBackoffIgnoreGrant, now)
		return
	}

	if err := s.hooks.Tune.TuneVC(freqHz, slotHint); err != nil {
		log.Warn("tune_vc failed", "freq_hz", freqHz, "err", err)
		s.failedTuneUntil[freqHz] = now.Add(time.Duration(2 * s.cfg.RetuneBackoffS * float64(time.Second)))
		s.tag("tune-vc-failed", now)
		s.state = Idle
		return
	}

	s.state = Armed
	s.vcFreqHz = freqHz
	s.vcChannelID = channelID
	s.vcSlotHint = slotHint
	s.slotActive[0] = false
	s.slotActive[1] = false
	s.tLastTune = now
}

// VoicePTT delivers a MAC_PTT (or first MAC_ACTIVE) event for slot.
func (s *SM) VoicePTT(slot int, now time.Time) {
	s.voiceActive(slot, now)
}

// VoiceActive delivers a MAC_ACTIVE event for slot.
func (s *SM) VoiceActive(slot int, now time.Time) {
	s.voiceActive(slot, now)
}

func (s *SM) voiceActive(slot int, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Armed:
		s.state = FollowingVC
		s.tFollowStart = now
		s.tLastVoice = now
		s.slotActive[slot] = true
		s.hooks.Gate.SetAudioGate(slot, true, now, macHold)
	case FollowingVC, Hang:
		s.state = FollowingVC
		s.tLastVoice = now
		s.slotActive[slot] = true
		s.hooks.Gate.SetAudioGate(slot, true, now, macHold)
	default:
		// Idle/returnCC: no voice channel is owned, ignore.
	}
}

// VoiceEnd delivers a MAC_END event for slot.
func (s *SM) VoiceEnd(slot int, now time.Time) {
	s.voiceInactive(slot, now)
}

// VoiceIdle delivers a slot-idle event (no traffic observed).
func (s *SM) VoiceIdle(slot int, now time.Time) {
	s.voiceInactive(slot, now)
}

func (s *SM) voiceInactive(slot int, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != FollowingVC {
		return
	}
	s.slotActive[slot] = false
	if !s.slotActive[0] && !s.slotActive[1] {
		s.hooks.Gate.SetAudioGate(0, false, now, 0)
		s.hooks.Gate.SetAudioGate(1, false, now, 0)
		s.state = Hang
		s.tHangStart = now
	}
}

// NoSync delivers a loss-of-sync signal on the currently followed
// voice channel.
func (s *SM) NoSync(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Armed {
		return
	}
	if now.Sub(s.tLastTune).Seconds() >= s.cfg.VCGraceS {
		s.state = Hang
		s.tHangStart = now
	}
}

// Tick drives time-based transitions and must be called periodically
// (by the watchdog) regardless of event traffic.
func (s *SM) Tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.releasePending {
		if err := s.hooks.Release.Release(); err != nil {
			log.Warn("return-to-cc retry failed", "err", err)
			return
		}
		s.releasePending = false
		s.state = Idle
		return
	}

	switch s.state {
	case Armed:
		noSlotActive := !s.slotActive[0] && !s.slotActive[1]
		if now.Sub(s.tLastTune).Seconds() >= s.cfg.GrantVoiceTimeoutS && noSlotActive {
			s.releaseLocked(now)
		}
	case FollowingVC:
		bothInactive := !s.slotActive[0] && !s.slotActive[1]
		if bothInactive &&
			now.Sub(s.tLastTune).Seconds() >= s.cfg.VCGraceS &&
			now.Sub(s.tLastVoice).Seconds() >= s.cfg.HangtimeS &&
			now.Sub(s.tFollowStart).Seconds() >= s.cfg.MinFollowDwellS {
			s.releaseLocked(now)
		}
	case Hang:
		if now.Sub(s.tHangStart).Seconds() >= s.cfg.HangtimeS {
			s.releaseLocked(now)
		}
	}
}

// releaseLocked implements the release() action; caller holds s.mu.
func (s *SM) releaseLocked(now time.Time) {
	s.lastReturnFreq = s.vcFreqHz
	s.tLastReturn = now
	s.haveReturned = true
	s.slotActive[0] = false
	s.slotActive[1] = false
	s.hooks.Gate.SetAudioGate(0, false, now, 0)
	s.hooks.Gate.SetAudioGate(1, false, now, 0)

	s.state = returnCC
	if err := s.hooks.Release.Release(); err != nil {
		log.Warn("return-to-cc failed, will retry", "err", err)
		s.releasePending = true
		return
	}
	s.state = Idle
}

// CCLost delivers a cc_lost signal: the current CC appears desynced.
// If stale for long enough, hunts the next eligible candidate and
// issues tune_cc.
func (s *SM) CCLost(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := now.Sub(s.lastCCSyncTime).Seconds()
	if elapsed < s.cfg.HangtimeS+s.cfg.VCGraceS {
		return
	}

	next, ok := s.cc.Next(s.currentCC, now.UnixNano())
	if !ok {
		s.tag("cc-hunt-no-candidate", now)
		return
	}
	if err := s.hooks.Tune.TuneCC(next); err != nil {
		log.Warn("tune_cc failed", "freq_hz", next, "err", err)
		s.tag("tune-cc-failed", now)
		return
	}
	s.currentCC = next
	s.lastCCSyncTime = now
	s.tag("cc-hunt", now)
}

// NeighborUpdate merges newly-heard CC candidate frequencies.
func (s *SM) NeighborUpdate(freqsHz []uint64) {
	s.cc.AddMany(freqsHz)
}
