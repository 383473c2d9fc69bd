package handlers

import (
	"errors"
	"net/http"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	constants "arkado/internal/constants"
	models "arkado/internal/models"
	outcome "arkado/internal/outcome"
	remote "arkado/internal/remote"
	session "arkado/internal/session"
	store "arkado/internal/store"
	timer "arkado/internal/timer"
	util "arkado/internal/util"
)

var gameTypes = []string{constants.GameTypeRunner, constants.GameTypeClaw, constants.GameTypeWheel}

// machineFor wires the countdown state machine for one request. The
// soft-expiry callback only flips the warning display flag; the
// hard-expiry callback notifies the backend best-effort and tears the
// session down locally. Forced navigation is produced by the caller
// from the returned phase.
func machineFor(app *models.App, c *gin.Context, scope *store.Scope) *timer.Machine {
	ctx := c.Request.Context()
	onSoft := func() {
		scope.MarkWarningShown()
	}
	onHard := func() {
		session.Terminate(ctx, app, scope)
	}
	return timer.New(scope, app.Clock, app.Cfg.SoftDuration, app.Cfg.BufferDuration, onSoft, onHard)
}

func EntryHandler(app *models.App, c *gin.Context) {
	visitID := session.GetOrCreateVisit(app, c)
	scope := app.Scope(visitID)
	c.HTML(http.StatusOK, "entry.html", gin.H{
		"title":      "Arkado",
		"games":      gameTypes,
		"hasSession": scope.SessionID() != "",
	})
}

func GameHandler(app *models.App, c *gin.Context) {
	gameType := c.Param("type")
	if !slices.Contains(gameTypes, gameType) {
		c.Redirect(http.StatusSeeOther, constants.RouteEntry)
		return
	}

	visitID := session.GetOrCreateVisit(app, c)
	scope := app.Scope(visitID)
	snap := machineFor(app, c, scope).Reconcile()
	if snap.Phase == timer.PhaseHardExpired {
		c.Redirect(http.StatusSeeOther, constants.RouteTimeout)
		return
	}

	c.HTML(http.StatusOK, "game.html", gin.H{
		"title":     "Arkado - " + gameType,
		"gameType":  gameType,
		"phase":     snap.Phase.String(),
		"countdown": util.FormatCountdown(remainingFor(snap)),
		"warning":   scope.WarningShown(),
	})
}

func ResultsHandler(app *models.App, c *gin.Context) {
	visitID := session.GetOrCreateVisit(app, c)
	scope := app.Scope(visitID)

	o, ok := outcome.Reconcile(c.Request.Context(), scope, app.Remote)
	if !ok {
		// Never render a blank result screen.
		c.Redirect(http.StatusSeeOther, constants.RouteDenied)
		return
	}

	c.HTML(http.StatusOK, "results.html", gin.H{
		"title":      "Arkado - Results",
		"outcome":    o,
		"won":       o.Kind == models.OutcomeQualified,
		"exhausted": o.Kind == models.OutcomeQualifiedExhausted,
		"claimable": o.HasVoucher(),
	})
}

func DeniedHandler(app *models.App, c *gin.Context) {
	c.HTML(http.StatusOK, "denied.html", gin.H{"title": "Arkado"})
}

func TimeoutHandler(app *models.App, c *gin.Context) {
	c.HTML(http.StatusOK, "timeout.html", gin.H{"title": "Arkado - Time's Up"})
}

func HealthzHandler(app *models.App, c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": app.Clock.Now().Sub(app.StartTime).String(),
	})
}

// SessionStartHandler creates the backend session and arms the timer.
// Calling it again with a live session is a no-op answer, so repeated
// start triggers never restart the clock.
func SessionStartHandler(app *models.App, c *gin.Context) {
	visitID := session.GetOrCreateVisit(app, c)
	scope := app.Scope(visitID)
	machine := machineFor(app, c, scope)

	if snap := machine.Reconcile(); snap.Phase == timer.PhaseHardExpired {
		respondExpired(c)
		return
	}

	if scope.SessionID() != "" {
		machine.Arm()
		respondTimer(c, scope, machine.Reconcile())
		return
	}

	deviceID := session.GetOrCreateDevice(app, c)
	grant, err := app.Remote.CreateSession(c.Request.Context(), deviceID, map[string]string{
		"userAgent": c.Request.UserAgent(),
	})
	if err != nil {
		if errors.Is(err, remote.ErrRateLimited) {
			util.LogWarn("Session creation rate-limited for device %s", deviceID)
			c.JSON(http.StatusTooManyRequests, gin.H{"code": constants.ErrorCodeTooManySessions})
			return
		}
		util.LogWarn("Session creation failed for device %s: %v", deviceID, err)
		c.JSON(http.StatusBadGateway, gin.H{"code": constants.ErrorCodeRemoteFailure})
		return
	}

	scope.SetSessionID(grant.SessionID)
	machine.Arm()
	util.LogInfo("Session %s started for visit %s", grant.SessionID, visitID)
	respondTimer(c, scope, machine.Reconcile())
}

// TimerStateHandler is the periodic tick poll.
func TimerStateHandler(app *models.App, c *gin.Context) {
	visitID := session.GetOrCreateVisit(app, c)
	scope := app.Scope(visitID)
	snap := machineFor(app, c, scope).Reconcile()
	if snap.Phase == timer.PhaseHardExpired {
		respondExpired(c)
		return
	}
	respondTimer(c, scope, snap)
}

// TimerSyncHandler is the uniform resync trigger. Visibility regained,
// orientation change, resize, and focus all arrive here as the same
// "please recompute now" call; the trigger name is logged and nothing
// else depends on it. Throttled background ticks are caught the same
// way: missed expiries fire during the reconcile.
func TimerSyncHandler(app *models.App, c *gin.Context) {
	var body struct {
		Trigger string `json:"trigger"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Trigger == "" {
		body.Trigger = "tick"
	}

	visitID := session.GetOrCreateVisit(app, c)
	scope := app.Scope(visitID)
	snap := machineFor(app, c, scope).Reconcile()
	util.LogInfo("Timer resync (%s) for visit %s: %s", body.Trigger, visitID, snap.Phase)
	if snap.Phase == timer.PhaseHardExpired {
		respondExpired(c)
		return
	}
	respondTimer(c, scope, snap)
}

type scoreRequest struct {
	GameType string `json:"gameType" binding:"required"`
	Score    int    `json:"score"`
}

func ScoreHandler(app *models.App, c *gin.Context) {
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil || !slices.Contains(gameTypes, req.GameType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid score payload"})
		return
	}

	visitID := session.GetOrCreateVisit(app, c)
	scope := app.Scope(visitID)
	machine := machineFor(app, c, scope)

	if snap := machine.Reconcile(); snap.Phase == timer.PhaseHardExpired {
		respondExpired(c)
		return
	}

	sessionID := scope.SessionID()
	startedAt, armed := scope.TimerStart()
	if sessionID == "" || !armed {
		c.JSON(http.StatusConflict, gin.H{"code": constants.ErrorCodeNoSession})
		return
	}

	result, err := app.Remote.SubmitScore(c.Request.Context(), sessionID, req.GameType, req.Score, startedAt, app.Clock.Now())

	// The timer keeps running during the remote call; a result that
	// lands after the hard cutoff is discarded.
	if machine.Reconcile().Phase == timer.PhaseHardExpired {
		util.LogInfo("Discarding score result for visit %s: arrived after hard expiry", visitID)
		respondExpired(c)
		return
	}

	if err != nil {
		if errors.Is(err, remote.ErrSessionExpired) {
			// The backend's verdict is as terminal as the local cutoff.
			scope.MarkHardExpired()
			scope.MarkSoftExpired()
			session.Terminate(c.Request.Context(), app, scope)
			respondExpired(c)
			return
		}
		util.LogWarn("Score submission failed for session %s: %v", sessionID, err)
		c.JSON(http.StatusBadGateway, gin.H{"code": constants.ErrorCodeRemoteFailure, "retryable": true})
		return
	}

	if result.Qualifies && result.Voucher == nil {
		// Tier pool depleted. The availability probe is informational
		// only; its failure never disturbs the outcome.
		if avail, aerr := app.Remote.CheckVoucherAvailability(c.Request.Context(), req.GameType); aerr == nil {
			util.LogInfo("Tier %d availability for %s: %v", result.Tier, req.GameType, avail[result.Tier])
		} else {
			util.LogWarn("Availability check failed for %s: %v", req.GameType, aerr)
		}
	}

	o := outcome.Build(req.GameType, req.Score, result)
	outcome.Cache(scope, o)
	c.JSON(http.StatusOK, gin.H{"outcome": o, "redirect": constants.RouteResults})
}

func AvailabilityHandler(app *models.App, c *gin.Context) {
	gameType := c.Param("type")
	if !slices.Contains(gameTypes, gameType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown game type"})
		return
	}
	avail, err := app.Remote.CheckVoucherAvailability(c.Request.Context(), gameType)
	if err != nil {
		util.LogWarn("Availability check failed for %s: %v", gameType, err)
		c.JSON(http.StatusBadGateway, gin.H{"code": constants.ErrorCodeRemoteFailure, "retryable": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tiers": avail})
}

type redeemRequest struct {
	Code string `json:"code" binding:"required"`
}

// RedeemHandler claims the voucher from the cached outcome. Only a
// qualified outcome with an issued voucher offers a claim action; the
// exhausted-tier variant never reaches here with a matching code.
func RedeemHandler(app *models.App, c *gin.Context) {
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid redeem payload"})
		return
	}

	visitID := session.GetOrCreateVisit(app, c)
	scope := app.Scope(visitID)

	o, ok := outcome.Cached(scope)
	if !ok || !o.HasVoucher() || o.Voucher.Code != req.Code {
		c.JSON(http.StatusConflict, gin.H{"error": "no claimable voucher"})
		return
	}

	deviceID := session.GetOrCreateDevice(app, c)
	if err := app.Remote.RedeemVoucher(c.Request.Context(), req.Code, map[string]string{"deviceId": deviceID}); err != nil {
		util.LogWarn("Voucher redemption failed for %s: %v", req.Code, err)
		c.JSON(http.StatusBadGateway, gin.H{"code": constants.ErrorCodeRemoteFailure, "retryable": true})
		return
	}

	// Voucher claimed: the session has legitimately ended.
	session.End(c.Request.Context(), app, scope)
	c.JSON(http.StatusOK, gin.H{"redeemed": true})
}

func SessionEndHandler(app *models.App, c *gin.Context) {
	visitID := session.GetOrCreateVisit(app, c)
	scope := app.Scope(visitID)
	session.End(c.Request.Context(), app, scope)
	c.JSON(http.StatusOK, gin.H{"ended": true})
}

// UnityAssetHandler serves the pre-compressed game bundles with the
// Content-Encoding and Content-Type headers the browser needs. The
// files ship compressed, so the gzip middleware excludes this route.
func UnityAssetHandler(app *models.App, c *gin.Context) {
	rel := c.Param("filepath")
	clean := path.Clean("/" + rel)
	if strings.Contains(clean, "..") {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	switch {
	case strings.HasSuffix(clean, ".br"):
		c.Header("Content-Encoding", "br")
		setUnityContentType(c, strings.TrimSuffix(clean, ".br"))
	case strings.HasSuffix(clean, ".gz"):
		c.Header("Content-Encoding", "gzip")
		setUnityContentType(c, strings.TrimSuffix(clean, ".gz"))
	}
	c.File("./unity" + clean)
}

func setUnityContentType(c *gin.Context, name string) {
	switch {
	case strings.HasSuffix(name, ".js"):
		c.Header("Content-Type", "application/javascript")
	case strings.HasSuffix(name, ".wasm"):
		c.Header("Content-Type", "application/wasm")
	case strings.HasSuffix(name, ".json"):
		c.Header("Content-Type", "application/json")
	case strings.HasSuffix(name, ".data"):
		c.Header("Content-Type", "application/octet-stream")
	}
}

// remainingFor picks the countdown the player should see: time to soft
// expiry while running, time left in the buffer afterwards.
func remainingFor(snap timer.Snapshot) time.Duration {
	if snap.Phase == timer.PhaseSoftExpired {
		return snap.BufferRemaining
	}
	return snap.Remaining
}

func respondTimer(c *gin.Context, scope *store.Scope, snap timer.Snapshot) {
	c.JSON(http.StatusOK, gin.H{
		"phase":            snap.Phase.String(),
		"remainingMs":      snap.Remaining.Milliseconds(),
		"bufferMs":         snap.BufferRemaining.Milliseconds(),
		"remainingSeconds": util.TruncateSeconds(remainingFor(snap)),
		"display":          util.FormatCountdown(remainingFor(snap)),
		"warning":          scope.WarningShown(),
		"sessionId":        scope.SessionID(),
	})
}

func respondExpired(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"phase":    timer.PhaseHardExpired.String(),
		"redirect": constants.RouteTimeout,
	})
}
