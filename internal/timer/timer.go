package timer

import (
	"time"

	"github.com/jonboulle/clockwork"

	store "arkado/internal/store"
	util "arkado/internal/util"
)

type Phase int

const (
	PhaseNotArmed Phase = iota
	PhaseRunning
	PhaseSoftExpired
	PhaseHardExpired
)

func (p Phase) String() string {
	switch p {
	case PhaseNotArmed:
		return "not_armed"
	case PhaseRunning:
		return "running"
	case PhaseSoftExpired:
		return "soft_expired"
	case PhaseHardExpired:
		return "hard_expired"
	}
	return "unknown"
}

// Snapshot is a derived view of the countdown at one instant. Remaining
// counts down to soft expiry while running; BufferRemaining counts down
// to the hard cutoff during the grace period.
type Snapshot struct {
	Phase           Phase
	Remaining       time.Duration
	BufferRemaining time.Duration
}

// Machine enforces the two-phase countdown. Its only truth is the start
// timestamp persisted in the visit scope: every evaluation derives the
// phase from stored elapsed time, so any number of concurrent evaluators
// agree as long as they share the store. Transitions are monotonic;
// PhaseHardExpired is terminal for the visit.
type Machine struct {
	scope *store.Scope
	clock clockwork.Clock
	soft  time.Duration
	total time.Duration

	// onSoftExpire flips display state only; access continues through
	// the buffer. onHardExpire performs termination side effects; the
	// caller of Reconcile owns the forced navigation.
	onSoftExpire func()
	onHardExpire func()
}

func New(scope *store.Scope, clock clockwork.Clock, soft, buffer time.Duration, onSoftExpire, onHardExpire func()) *Machine {
	return &Machine{
		scope:        scope,
		clock:        clock,
		soft:         soft,
		total:        soft + buffer,
		onSoftExpire: onSoftExpire,
		onHardExpire: onHardExpire,
	}
}

// Arm records now as the start timestamp if none is stored. Calling it
// again while armed is a no-op, so repeated game-start triggers never
// restart the clock. A hard-expired visit must get a fresh session (and
// Reset) before it can arm again.
func (m *Machine) Arm() {
	if m.scope.HardExpired() {
		util.LogWarn("Arm refused: visit %s is hard-expired", m.scope.VisitID())
		return
	}
	if _, ok := m.scope.TimerStart(); ok {
		return
	}
	now := m.clock.Now()
	m.scope.SetTimerStart(now)
	util.LogInfo("Timer armed for visit %s at %d", m.scope.VisitID(), now.UnixMilli())
}

// CurrentState derives the phase purely from the stored start timestamp
// and the supplied clock reading. It has no side effects and may be
// called from any evaluator in any order.
func (m *Machine) CurrentState(now time.Time) Snapshot {
	// The persisted terminal flag outranks arithmetic: once hard-expired,
	// always hard-expired, even if timer keys were partially cleared.
	if m.scope.HardExpired() {
		return Snapshot{Phase: PhaseHardExpired}
	}
	start, ok := m.scope.TimerStart()
	if !ok {
		return Snapshot{Phase: PhaseNotArmed}
	}

	elapsed := now.Sub(start)
	switch {
	case elapsed >= m.total:
		return Snapshot{Phase: PhaseHardExpired}
	case elapsed >= m.soft:
		return Snapshot{Phase: PhaseSoftExpired, BufferRemaining: m.total - elapsed}
	default:
		return Snapshot{Phase: PhaseRunning, Remaining: m.soft - elapsed, BufferRemaining: m.total - elapsed}
	}
}

// Reconcile is the single recomputation entry point. Every trigger —
// the periodic tick, tab visibility regained, orientation change,
// resize, focus — funnels into this one call, which recomputes the
// phase from storage and fires each transition callback exactly once.
//
// A reconcile that lands past the hard cutoff without ever having seen
// the soft window (tab backgrounded through both thresholds) goes
// straight to PhaseHardExpired: the soft flag is marked so it can never
// fire later, but the soft callback is skipped.
func (m *Machine) Reconcile() Snapshot {
	snap := m.CurrentState(m.clock.Now())

	switch snap.Phase {
	case PhaseSoftExpired:
		if !m.scope.SoftExpired() {
			m.scope.MarkSoftExpired()
			util.LogInfo("Soft expiry for visit %s, buffer remaining %v", m.scope.VisitID(), snap.BufferRemaining)
			if m.onSoftExpire != nil {
				m.onSoftExpire()
			}
		}
	case PhaseHardExpired:
		if !m.scope.HardExpired() {
			// Terminal flag first: a crash between flag and callbacks
			// still leaves the visit terminally expired.
			m.scope.MarkHardExpired()
			if !m.scope.SoftExpired() {
				m.scope.MarkSoftExpired()
			}
			util.LogInfo("Hard expiry for visit %s", m.scope.VisitID())
			if m.onHardExpire != nil {
				m.onHardExpire()
			}
		}
	}
	return snap
}

// Remaining reports time left before the hard cutoff, zero once past it
// or before arming.
func (m *Machine) Remaining(now time.Time) time.Duration {
	snap := m.CurrentState(now)
	switch snap.Phase {
	case PhaseRunning, PhaseSoftExpired:
		return snap.BufferRemaining
	}
	return 0
}

// Expired reports whether the hard cutoff has passed.
func (m *Machine) Expired(now time.Time) bool {
	return m.CurrentState(now).Phase == PhaseHardExpired
}

// Reset clears all persisted timer state. Only a legitimate session end
// (voucher claimed, or a brand-new session issued) may call this; a
// subsequent Arm takes the new call's time.
func (m *Machine) Reset() {
	m.scope.ClearTimer()
	util.LogInfo("Timer reset for visit %s", m.scope.VisitID())
}
