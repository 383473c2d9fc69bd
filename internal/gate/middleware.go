package gate

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	constants "arkado/internal/constants"
	models "arkado/internal/models"
	session "arkado/internal/session"
	util "arkado/internal/util"
)

// Middleware runs the admission check before any other page logic. A
// denial redirects (pages) or answers 403 with a redirect directive
// (API calls) and aborts the chain, so nothing downstream executes.
func Middleware(app *models.App) gin.HandlerFunc {
	g := New(app.Cfg, app.Clock)
	return func(c *gin.Context) {
		visitID := session.GetOrCreateVisit(app, c)
		scope := app.Scope(visitID)

		decision := g.CheckAccess(scope, Request{
			Path:       c.Request.URL.Path,
			EntryToken: c.Query(constants.EntryTokenParam),
			QAFlag:     c.Query(constants.QAOverrideParam) == "1",
			UserAgent:  c.Request.UserAgent(),
		})

		if !decision.Allow {
			util.LogInfo("Admission denied for visit %s on %s: %s", visitID, c.Request.URL.Path, decision.Reason)
			if strings.HasPrefix(c.Request.URL.Path, "/api/") {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"code":     decision.Reason,
					"redirect": decision.RedirectTo,
				})
				return
			}
			c.Redirect(http.StatusSeeOther, decision.RedirectTo)
			c.Abort()
			return
		}

		// Allowed but with a redirect target: the load carried the entry
		// token, which must be stripped from the visible address.
		if decision.RedirectTo != "" {
			c.Redirect(http.StatusSeeOther, decision.RedirectTo)
			c.Abort()
			return
		}

		c.Next()
	}
}
