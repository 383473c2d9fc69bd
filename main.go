package main

import (
	"context"
	"html/template"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	ginGzip "github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"

	config "arkado/internal/config"
	constants "arkado/internal/constants"
	gate "arkado/internal/gate"
	handlers "arkado/internal/handlers"
	models "arkado/internal/models"
	remote "arkado/internal/remote"
	store "arkado/internal/store"
	util "arkado/internal/util"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		util.LogFatal("Failed to load configuration: %v", err)
	}
	util.LogInfo("Starting Arkado in %s mode", map[bool]string{true: "production", false: "development"}[cfg.IsProduction])
	util.LogInfo("Play window: %v soft + %v buffer", cfg.SoftDuration, cfg.BufferDuration)

	clock := clockwork.NewRealClock()
	app := &models.App{
		Cfg:        cfg,
		Clock:      clock,
		Visits:     store.NewMemoryStore(clock),
		Remote:     remote.NewClient(cfg.RemoteBaseURL, cfg.RemoteTimeout),
		StartTime:  clock.Now(),
		LimiterMap: make(map[string]*models.RateLimiterWithTime),
	}

	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	router.Use(requestIDMiddleware())
	router.Use(securityHeadersMiddleware())

	// Unity bundles ship pre-compressed; re-compressing them wastes CPU
	// and breaks their Content-Encoding.
	router.Use(ginGzip.Gzip(ginGzip.DefaultCompression,
		ginGzip.WithExcludedExtensions([]string{".br", ".gz", ".svg", ".ico", ".png", ".jpg", ".jpeg", ".gif"}),
		ginGzip.WithExcludedPaths([]string{"/unity"})))

	if err := router.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		util.LogWarn("Failed to set trusted proxies: %v", err)
	}

	isProduction := cfg.IsProduction
	router.Use(func(c *gin.Context) {
		applyCacheHeaders(app, c, isProduction)
	})

	// Admission runs before any page or API logic; a denial redirect is
	// the last thing that happens on that request.
	router.Use(gate.Middleware(app))

	loadTemplates(router)
	router.Static("/static", "./static")

	router.GET(constants.RouteEntry, wrap(app, handlers.EntryHandler))
	router.GET(constants.RouteGame, wrap(app, handlers.GameHandler))
	router.GET(constants.RouteResults, wrap(app, handlers.ResultsHandler))
	router.GET(constants.RouteDenied, wrap(app, handlers.DeniedHandler))
	router.GET(constants.RouteTimeout, wrap(app, handlers.TimeoutHandler))
	router.GET(constants.RouteHealthz, wrap(app, handlers.HealthzHandler))
	router.GET("/unity/*filepath", wrap(app, handlers.UnityAssetHandler))

	router.POST(constants.RouteSessionStart, rateLimitMiddleware(app), wrap(app, handlers.SessionStartHandler))
	router.POST(constants.RouteSessionEnd, wrap(app, handlers.SessionEndHandler))
	router.GET(constants.RouteTimerState, wrap(app, handlers.TimerStateHandler))
	router.POST(constants.RouteTimerSync, wrap(app, handlers.TimerSyncHandler))
	router.POST(constants.RouteScore, rateLimitMiddleware(app), wrap(app, handlers.ScoreHandler))
	router.GET(constants.RouteAvailability, wrap(app, handlers.AvailabilityHandler))
	router.POST(constants.RouteRedeem, rateLimitMiddleware(app), wrap(app, handlers.RedeemHandler))

	startCleanupRoutines(app)

	startServer(router, cfg)
}

func wrap(app *models.App, h func(*models.App, *gin.Context)) gin.HandlerFunc {
	return func(c *gin.Context) {
		h(app, c)
	}
}

func loadTemplates(router *gin.Engine) {
	baseTplDir := "templates"
	if util.DirExists("dist") {
		util.LogInfo("Serving templates from dist/ directory")
		baseTplDir = filepath.ToSlash(filepath.Join("dist", "templates"))
	}
	pattern := filepath.ToSlash(filepath.Join(baseTplDir, "*.html"))

	master := template.New("")
	if _, err := master.ParseGlob(pattern); err != nil {
		util.LogFatal("Failed to parse templates: %v", err)
	}
	router.SetHTMLTemplate(master)
}

func startCleanupRoutines(app *models.App) {
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			app.Visits.Cleanup(app.Cfg.VisitTTL)
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			cleanupStaleRateLimiters(app)
		}
	}()

	util.LogInfo("Started cleanup routines for visits and rate limiters")
}

func cleanupStaleRateLimiters(app *models.App) {
	app.LimiterMutex.Lock()
	defer app.LimiterMutex.Unlock()

	cutoff := app.Clock.Now().Add(-app.Cfg.RateLimiterTTL)
	removed := 0
	for key, limWithTime := range app.LimiterMap {
		if limWithTime.LastAccess.Before(cutoff) {
			delete(app.LimiterMap, key)
			removed++
		}
	}

	if removed > 0 {
		util.LogInfo("Cleaned up %d stale rate limiters", removed)
	}
}

func startServer(router *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
		<-sigint
		util.LogInfo("Shutdown signal received, shutting down server gracefully...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			util.LogWarn("HTTP server Shutdown: %v", err)
		}
		close(idleConnsClosed)
	}()

	util.LogInfo("Server starting on http://localhost:%s", cfg.Port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		util.LogFatal("Server failed to start: %v", err)
	}
	<-idleConnsClosed
	util.LogInfo("Server shutdown complete")
}
