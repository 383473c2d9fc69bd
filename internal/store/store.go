package store

import (
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	constants "arkado/internal/constants"
	util "arkado/internal/util"
)

// Store is a last-write-wins key-value map scoped per visit. There is no
// transactional guarantee across keys: callers must tolerate torn reads
// by treating any incomplete key combination as "not admitted".
type Store interface {
	Get(visitID, key string) (string, bool)
	Set(visitID, key, value string)
	Delete(visitID, key string)
	ClearVisit(visitID string)
}

// MemoryStore keeps visit scopes in memory for the life of the process,
// swept by TTL so abandoned visits do not accumulate.
type MemoryStore struct {
	mu         sync.RWMutex
	visits     map[string]map[string]string
	lastAccess map[string]time.Time
	clock      clockwork.Clock
}

func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	return &MemoryStore{
		visits:     make(map[string]map[string]string),
		lastAccess: make(map[string]time.Time),
		clock:      clock,
	}
}

func (s *MemoryStore) Get(visitID, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scope, ok := s.visits[visitID]
	if !ok {
		return "", false
	}
	v, ok := scope[key]
	return v, ok
}

func (s *MemoryStore) Set(visitID, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scope, ok := s.visits[visitID]
	if !ok {
		scope = make(map[string]string)
		s.visits[visitID] = scope
	}
	scope[key] = value
	s.lastAccess[visitID] = s.clock.Now()
}

func (s *MemoryStore) Delete(visitID, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if scope, ok := s.visits[visitID]; ok {
		delete(scope, key)
		s.lastAccess[visitID] = s.clock.Now()
	}
}

func (s *MemoryStore) ClearVisit(visitID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.visits, visitID)
	delete(s.lastAccess, visitID)
}

// Cleanup removes visits idle for longer than ttl and reports how many
// were removed.
func (s *MemoryStore) Cleanup(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock.Now().Add(-ttl)
	removed := 0
	for visitID, last := range s.lastAccess {
		if last.Before(cutoff) {
			delete(s.visits, visitID)
			delete(s.lastAccess, visitID)
			removed++
		}
	}
	if removed > 0 {
		util.LogInfo("Cleaned up %d stale visits", removed)
	}
	return removed
}

// Scope is a typed view over one visit's fixed key schema. All reads go
// straight to the underlying store so concurrent evaluators always see
// the latest write.
type Scope struct {
	store   Store
	visitID string
}

func NewScope(s Store, visitID string) *Scope {
	return &Scope{store: s, visitID: visitID}
}

func (sc *Scope) VisitID() string { return sc.visitID }

func (sc *Scope) Verified() bool {
	v, ok := sc.store.Get(sc.visitID, constants.KeyVerified)
	return ok && v == "1"
}

func (sc *Scope) SetVerified(at time.Time) {
	sc.store.Set(sc.visitID, constants.KeyVerified, "1")
	sc.store.Set(sc.visitID, constants.KeyEntryAt, formatMillis(at))
}

func (sc *Scope) EntryAt() (time.Time, bool) {
	return sc.timeKey(constants.KeyEntryAt)
}

func (sc *Scope) SessionID() string {
	v, _ := sc.store.Get(sc.visitID, constants.KeySessionID)
	return v
}

func (sc *Scope) SetSessionID(id string) {
	sc.store.Set(sc.visitID, constants.KeySessionID, id)
}

func (sc *Scope) TimerStart() (time.Time, bool) {
	return sc.timeKey(constants.KeyTimerStart)
}

func (sc *Scope) SetTimerStart(at time.Time) {
	sc.store.Set(sc.visitID, constants.KeyTimerStart, formatMillis(at))
}

func (sc *Scope) SoftExpired() bool { return sc.flag(constants.KeySoftExpired) }

func (sc *Scope) MarkSoftExpired() {
	sc.store.Set(sc.visitID, constants.KeySoftExpired, "1")
}

func (sc *Scope) HardExpired() bool { return sc.flag(constants.KeyHardExpired) }

func (sc *Scope) MarkHardExpired() {
	sc.store.Set(sc.visitID, constants.KeyHardExpired, "1")
}

func (sc *Scope) WarningShown() bool { return sc.flag(constants.KeyWarningShown) }

func (sc *Scope) MarkWarningShown() {
	sc.store.Set(sc.visitID, constants.KeyWarningShown, "1")
}

func (sc *Scope) QAOverride() bool { return sc.flag(constants.KeyQAOverride) }

func (sc *Scope) SetQAOverride() {
	sc.store.Set(sc.visitID, constants.KeyQAOverride, "1")
}

func (sc *Scope) CachedOutcome() (string, bool) {
	return sc.store.Get(sc.visitID, constants.KeyCachedOutcome)
}

func (sc *Scope) SetCachedOutcome(raw string) {
	sc.store.Set(sc.visitID, constants.KeyCachedOutcome, raw)
}

func (sc *Scope) ClearCachedOutcome() {
	sc.store.Delete(sc.visitID, constants.KeyCachedOutcome)
}

// ClearTimer removes every timer key. Used only when a session
// legitimately ends; a hard-expired visit keeps its terminal flag until
// the whole scope is torn down.
func (sc *Scope) ClearTimer() {
	sc.store.Delete(sc.visitID, constants.KeyTimerStart)
	sc.store.Delete(sc.visitID, constants.KeySoftExpired)
	sc.store.Delete(sc.visitID, constants.KeyHardExpired)
	sc.store.Delete(sc.visitID, constants.KeyWarningShown)
}

// ClearAll tears down the whole visit scope.
func (sc *Scope) ClearAll() {
	sc.store.ClearVisit(sc.visitID)
}

func (sc *Scope) flag(key string) bool {
	v, ok := sc.store.Get(sc.visitID, key)
	return ok && v == "1"
}

func (sc *Scope) timeKey(key string) (time.Time, bool) {
	v, ok := sc.store.Get(sc.visitID, key)
	if !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		util.LogWarn("Corrupt timestamp for key %s: %q", key, v)
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// Timestamps persist as whole unix milliseconds.
func formatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
