package constants

type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
)

const (
	VisitCookieName  = "visit_id"
	DeviceCookieName = "device_id"
)

const (
	RouteEntry        = "/"
	RouteGame         = "/game/:type"
	RouteResults      = "/results"
	RouteDenied       = "/denied"
	RouteTimeout      = "/timeout"
	RouteHealthz      = "/healthz"
	RouteSessionStart = "/api/session/start"
	RouteSessionEnd   = "/api/session/end"
	RouteTimerState   = "/api/timer"
	RouteTimerSync    = "/api/timer/sync"
	RouteScore        = "/api/score"
	RouteAvailability = "/api/availability/:type"
	RouteRedeem       = "/api/redeem"
)

// EntryTokenParam is the one-time query parameter proving arrival through
// the approved channel. It must never survive into the visible address.
const EntryTokenParam = "t"

// QAOverrideParam bypasses the mobile-device rule when enabled in config.
const QAOverrideParam = "qa"

// Per-visit storage keys. The store gives no cross-key guarantee; readers
// must treat any incomplete combination as not admitted.
const (
	KeyVerified      = "verified"
	KeyEntryAt       = "entry_at"
	KeySessionID     = "session_id"
	KeyTimerStart    = "timer_start"
	KeySoftExpired   = "soft_expired"
	KeyHardExpired   = "hard_expired"
	KeyWarningShown  = "warning_shown"
	KeyCachedOutcome = "cached_outcome"
	KeyQAOverride    = "qa_override"
)

const (
	ErrorCodeNotMobile       = "not_mobile"
	ErrorCodeNoToken         = "no_entry_token"
	ErrorCodeNoSession       = "no_session"
	ErrorCodeSessionExpired  = "session_expired"
	ErrorCodeTooManySessions = "too_many_sessions"
	ErrorCodeTierExhausted   = "tier_exhausted"
	ErrorCodeRemoteFailure   = "remote_failure"
)

const (
	GameTypeRunner = "runner"
	GameTypeClaw   = "claw"
	GameTypeWheel  = "wheel"
)

const (
	MinTier = 0
	MaxTier = 3
)
