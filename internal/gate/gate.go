package gate

import (
	"strings"

	"github.com/jonboulle/clockwork"

	config "arkado/internal/config"
	constants "arkado/internal/constants"
	models "arkado/internal/models"
	store "arkado/internal/store"
	util "arkado/internal/util"
)

type PageClass int

const (
	PageExempt PageClass = iota
	PageEntry
	PageInterior
)

// ClassifyPage maps a request path onto the admission category. Exempt
// paths (fallback and diagnostic surfaces, static assets) bypass every
// other check.
func ClassifyPage(path string) PageClass {
	switch path {
	case constants.RouteEntry:
		return PageEntry
	case constants.RouteDenied, constants.RouteTimeout, constants.RouteHealthz:
		return PageExempt
	}
	if strings.HasPrefix(path, "/static/") || strings.HasPrefix(path, "/unity/") {
		return PageExempt
	}
	return PageInterior
}

// IsMobileDevice classifies the visitor's device from User-Agent
// platform signals. Heuristic on purpose: the gate fails closed, and the
// QA override exists for emulators.
func IsMobileDevice(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	if strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet") {
		return true
	}
	if strings.Contains(ua, "android") {
		// Android tablets omit "Mobile" from the UA; both are allowed.
		return true
	}
	for _, signal := range []string{"iphone", "ipod", "windows phone", "mobile", "opera mini"} {
		if strings.Contains(ua, signal) {
			return true
		}
	}
	return false
}

// Request carries the page-load facts the gate decides on, decoupled
// from any HTTP framework so the decision logic is testable in
// isolation.
type Request struct {
	Path       string
	EntryToken string
	QAFlag     bool
	UserAgent  string
}

// Gate decides per page load whether the visitor may proceed. Aside
// from marking the scope verified on first valid entry (and persisting
// the QA override), CheckAccess is pure; it is safe to call repeatedly
// on the same load.
type Gate struct {
	cfg   config.Config
	clock clockwork.Clock
}

func New(cfg config.Config, clock clockwork.Clock) *Gate {
	return &Gate{cfg: cfg, clock: clock}
}

func (g *Gate) CheckAccess(scope *store.Scope, req Request) models.AccessDecision {
	class := ClassifyPage(req.Path)
	if class == PageExempt {
		return models.AccessDecision{Allow: true, Reason: "exempt_page"}
	}

	// A terminally expired visit navigates to the timeout page before
	// anything else runs, without waiting for the tick loop.
	if scope.HardExpired() {
		return models.AccessDecision{
			Allow:      false,
			Reason:     constants.ErrorCodeSessionExpired,
			RedirectTo: constants.RouteTimeout,
		}
	}

	if !g.deviceEligible(scope, req) {
		return models.AccessDecision{
			Allow:      false,
			Reason:     constants.ErrorCodeNotMobile,
			RedirectTo: constants.RouteDenied,
		}
	}

	switch class {
	case PageEntry:
		return g.checkEntry(scope, req)
	default:
		if scope.Verified() {
			return models.AccessDecision{Allow: true, Reason: "verified_session"}
		}
		return models.AccessDecision{
			Allow:      false,
			Reason:     constants.ErrorCodeNoSession,
			RedirectTo: constants.RouteDenied,
		}
	}
}

// deviceEligible applies the mobile-device rule. The override flag is
// honored only when enabled in config and, once seen, sticks to the
// scope so interior loads do not need to repeat the query flag.
func (g *Gate) deviceEligible(scope *store.Scope, req Request) bool {
	if g.cfg.AllowQAOverride {
		if scope.QAOverride() {
			return true
		}
		if req.QAFlag {
			scope.SetQAOverride()
			util.LogInfo("QA device override enabled for visit %s", scope.VisitID())
			return true
		}
	}
	return IsMobileDevice(req.UserAgent)
}

func (g *Gate) checkEntry(scope *store.Scope, req Request) models.AccessDecision {
	if req.EntryToken != "" && req.EntryToken == g.cfg.EntryToken {
		if !scope.Verified() {
			scope.SetVerified(g.clock.Now())
			util.LogInfo("Visit %s verified via entry token", scope.VisitID())
		}
		// Redirect to the clean path so the token never remains in the
		// visible address.
		return models.AccessDecision{
			Allow:      true,
			Reason:     "entry_token",
			RedirectTo: constants.RouteEntry,
		}
	}
	if scope.Verified() {
		return models.AccessDecision{Allow: true, Reason: "verified_session"}
	}
	return models.AccessDecision{
		Allow:      false,
		Reason:     constants.ErrorCodeNoToken,
		RedirectTo: constants.RouteDenied,
	}
}
