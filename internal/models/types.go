package models

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	config "arkado/internal/config"
	store "arkado/internal/store"
)

// AccessDecision is the ephemeral result of one admission check. It is
// recomputed on every page load and never persisted.
type AccessDecision struct {
	Allow      bool
	Reason     string
	RedirectTo string
}

type OutcomeKind string

const (
	OutcomeNotQualified       OutcomeKind = "not_qualified"
	OutcomeQualified          OutcomeKind = "qualified"
	OutcomeQualifiedExhausted OutcomeKind = "qualified_exhausted"
)

type Voucher struct {
	Code        string `json:"code"`
	Tier        int    `json:"tier"`
	DiscountPct int    `json:"discountPct"`
}

// GameOutcome is a tagged variant: Voucher is non-nil exactly when Kind
// is OutcomeQualified. OutcomeQualifiedExhausted means the player earned
// a tier whose reward pool was depleted.
type GameOutcome struct {
	Kind     OutcomeKind `json:"kind"`
	GameType string      `json:"gameType"`
	Score    int         `json:"score"`
	Tier     int         `json:"tier"`
	Voucher  *Voucher    `json:"voucher,omitempty"`
}

func (o GameOutcome) Qualifies() bool {
	return o.Kind == OutcomeQualified || o.Kind == OutcomeQualifiedExhausted
}

func (o GameOutcome) HasVoucher() bool {
	return o.Kind == OutcomeQualified && o.Voucher != nil
}

// SessionGrant is the remote service's answer to session creation.
type SessionGrant struct {
	SessionID string `json:"sessionId"`
	Token     string `json:"token"`
}

type ScoreResult struct {
	Qualifies bool     `json:"qualifies"`
	Tier      int      `json:"tier"`
	Voucher   *Voucher `json:"voucher,omitempty"`
}

// TierAvailability maps tier number to whether its reward pool still has
// vouchers left.
type TierAvailability map[int]bool

// RewardRecord is the remote side's record of the most recent reward
// issued to a session, used to rebuild an outcome after a reload.
type RewardRecord struct {
	SessionID string    `json:"sessionId"`
	GameType  string    `json:"gameType"`
	Score     int       `json:"score"`
	Qualifies bool      `json:"qualifies"`
	Tier      int       `json:"tier"`
	Voucher   *Voucher  `json:"voucher,omitempty"`
	IssuedAt  time.Time `json:"issuedAt"`
}

// RemoteService is the backend API boundary. Implementations return the
// sentinel errors in internal/remote for the distinguished failure modes
// (rate limited, session expired).
type RemoteService interface {
	CreateSession(ctx context.Context, deviceID string, meta map[string]string) (SessionGrant, error)
	SubmitScore(ctx context.Context, sessionID, gameType string, score int, startedAt, completedAt time.Time) (ScoreResult, error)
	EndSession(ctx context.Context, sessionID string) error
	CheckVoucherAvailability(ctx context.Context, gameType string) (TierAvailability, error)
	RedeemVoucher(ctx context.Context, code string, meta map[string]string) error
	LatestReward(ctx context.Context, sessionID string) (RewardRecord, error)
}

type RateLimiterWithTime struct {
	Limiter    *rate.Limiter
	LastAccess time.Time
}

type App struct {
	Cfg          config.Config
	Clock        clockwork.Clock
	Visits       *store.MemoryStore
	Remote       RemoteService
	StartTime    time.Time
	LimiterMap   map[string]*RateLimiterWithTime
	LimiterMutex sync.RWMutex
}

// Scope returns the typed view over one visit's stored state.
func (app *App) Scope(visitID string) *store.Scope {
	return store.NewScope(app.Visits, visitID)
}
