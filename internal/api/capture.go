package api

import (
	"context"  // Context for service calls
	"errors"   // Error inspection
	"io"       // Reading the upload
	"net/http" // HTTP status codes
	"strconv"  // Query parsing

	"calorie_tracker/internal/capture"    // Capture orchestration
	"calorie_tracker/internal/domain"     // Domain models and errors
	"calorie_tracker/internal/middleware" // Session context keys

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// MaxUploadBytes caps a capture request body
const MaxUploadBytes = 10 << 20

// Capturer is the part of the capture orchestrator the handlers need
type Capturer interface {
	Capture(ctx context.Context, token string, image []byte, mimeType, prompt string) (*capture.Result, error)
	Recent(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error)
	TodayTotal(ctx context.Context, userID string) (int64, error)
	History(ctx context.Context, userID string, page, pageSize int) (*capture.HistoryPage, error)
}

// CaptureHandler estimates the uploaded image and adds it to today's total
func CaptureHandler(captures Capturer) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadBytes)
		if err := c.Request.ParseMultipartForm(MaxUploadBytes); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
				return
			}
			if !errors.Is(err, http.ErrNotMultipart) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
		}

		var image []byte
		mimeType := ""
		file, header, err := c.Request.FormFile("file")
		if err == nil {
			defer file.Close()
			if image, err = io.ReadAll(file); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
				return
			}
			mimeType = header.Header.Get("Content-Type")
		}
		if mimeType == "" && len(image) > 0 {
			mimeType = http.DetectContentType(image)
		}

		token := c.GetString(middleware.SessionTokenKey) // Set by the session guard
		result, err := captures.Capture(c.Request.Context(), token, image, mimeType, c.PostForm("prompt"))
		if err != nil {
			status := captureStatus(err)
			if status == http.StatusUnauthorized {
				c.JSON(status, gin.H{"error": "Unauthorized"})
				return
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// HistoryHandler returns the user's ledger one page at a time
func HistoryHandler(captures Capturer) gin.HandlerFunc {
	return func(c *gin.Context) {
		page := 1      // Default page
		pageSize := 20 // Default page size
		// If page exists in query
		if p := c.Query("page"); p != "" {
			if v, err := strconv.Atoi(p); err == nil && v > 0 {
				page = v // Set page if valid
			}
		}
		// If page_size exists in query
		if ps := c.Query("page_size"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
				pageSize = v // Set page size if valid
			}
		}
		result, err := captures.History(c.Request.Context(), c.GetString(middleware.UserIDKey), page, pageSize)
		if err != nil {
			c.JSON(captureStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// captureStatus maps service errors to HTTP status codes
func captureStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case domain.IsUpstream(err):
		return http.StatusInternalServerError
	default:
		logrus.WithFields(logrus.Fields{"error": err.Error()}).Error("Unexpected capture error")
		return http.StatusInternalServerError
	}
}
