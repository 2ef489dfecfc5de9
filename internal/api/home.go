package api

import (
	"net/http" // HTTP status codes

	"calorie_tracker/internal/domain"     // Domain models
	"calorie_tracker/internal/middleware" // Session context keys

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// homeData is what home.html renders
type homeData struct {
	Username   string
	TodayTotal int64
	Entries    []domain.LedgerEntry
}

// HomeHandler shows the user's latest ledger days, newest first
func HomeHandler(captures Capturer, entries int) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c) // Set by the session guard
		ctx := c.Request.Context()
		recent, err := captures.Recent(ctx, user.ID, entries)
		if err != nil {
			logrus.WithFields(logrus.Fields{"user_id": user.ID, "error": err.Error()}).Error("Failed to load ledger")
			c.String(http.StatusInternalServerError, "Failed to load ledger")
			return
		}
		total, err := captures.TodayTotal(ctx, user.ID)
		if err != nil {
			logrus.WithFields(logrus.Fields{"user_id": user.ID, "error": err.Error()}).Error("Failed to load today's total")
			c.String(http.StatusInternalServerError, "Failed to load ledger")
			return
		}
		c.HTML(http.StatusOK, "home.html", homeData{Username: user.Username, TodayTotal: total, Entries: recent})
	}
}
