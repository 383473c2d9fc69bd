package session

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	constants "arkado/internal/constants"
	models "arkado/internal/models"
	store "arkado/internal/store"
	util "arkado/internal/util"
)

// GetOrCreateVisit resolves the visit cookie. The cookie is
// session-lived (no max-age), so the visit scope dies with the browser
// tab the way the bounded-session model requires.
func GetOrCreateVisit(app *models.App, c *gin.Context) string {
	visitID, err := c.Cookie(constants.VisitCookieName)
	if err != nil || len(visitID) < 10 {
		visitID = uuid.NewString()
		c.SetSameSite(http.SameSiteStrictMode)
		secure := app.Cfg.IsProduction
		c.SetCookie(constants.VisitCookieName, visitID, 0, "/", "", secure, true)
		util.LogInfo("Created new visit: %s", visitID)
	}
	return visitID
}

// GetOrCreateDevice resolves the long-lived device identifier, the only
// state that survives across visits.
func GetOrCreateDevice(app *models.App, c *gin.Context) string {
	deviceID, err := c.Cookie(constants.DeviceCookieName)
	if err != nil || len(deviceID) < 10 {
		deviceID = uuid.NewString()
		c.SetSameSite(http.SameSiteLaxMode)
		secure := app.Cfg.IsProduction
		c.SetCookie(constants.DeviceCookieName, deviceID, int(app.Cfg.DeviceCookieMaxAge.Seconds()), "/", "", secure, true)
		util.LogInfo("Created new device id: %s", deviceID)
	}
	return deviceID
}

// End tears down a legitimately finished session: remote notification is
// best-effort, local cleanup is unconditional. A fresh Arm after this
// takes the new call's time.
func End(ctx context.Context, app *models.App, scope *store.Scope) {
	notifyRemoteEnd(ctx, app, scope)
	scope.ClearTimer()
	scope.SetSessionID("")
	util.LogInfo("Session ended for visit %s", scope.VisitID())
}

// Terminate is the hard-expiry teardown. The terminal flag has already
// been persisted by the timer machine; here the remote side is told
// best-effort and local timer display state is left terminal so every
// later page load redirects to the timeout page.
func Terminate(ctx context.Context, app *models.App, scope *store.Scope) {
	notifyRemoteEnd(ctx, app, scope)
	scope.SetSessionID("")
	util.LogInfo("Session terminated for visit %s", scope.VisitID())
}

func notifyRemoteEnd(ctx context.Context, app *models.App, scope *store.Scope) {
	sessionID := scope.SessionID()
	if sessionID == "" {
		return
	}
	if err := app.Remote.EndSession(ctx, sessionID); err != nil {
		// Best-effort: never retried, never blocks local cleanup.
		util.LogWarn("Remote end-session failed for %s: %v", sessionID, err)
	}
}
