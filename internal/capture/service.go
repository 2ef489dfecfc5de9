// Package capture turns an authenticated image submission into a ledger increment.
package capture

import (
	"context"
	"errors"
	"time"

	"calorie_tracker/internal/domain"
	"calorie_tracker/internal/estimator"
	"calorie_tracker/internal/utils"

	"github.com/sirupsen/logrus"
)

// Sessions resolves a session token to its user
type Sessions interface {
	CurrentUser(ctx context.Context, token string) (*domain.User, error)
}

// Estimator asks the external collaborator for a raw calorie estimate
type Estimator interface {
	Estimate(ctx context.Context, image []byte, mimeType, prompt string) (estimator.Estimate, error)
}

// Ledger is the per-(user, day) calorie accumulator; AddCalories must be atomic per key
type Ledger interface {
	AddCalories(ctx context.Context, userID, date string, amount int64) (int64, error)
	Total(ctx context.Context, userID, date string) (int64, error)
	Recent(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error)
	History(ctx context.Context, userID string, offset, limit int) ([]domain.LedgerEntry, int64, error)
}

// Archive keeps a copy of accepted capture images
type Archive interface {
	Store(ctx context.Context, userID, day string, image []byte, mimeType string) (string, error)
}

// Result is what one capture produced
type Result struct {
	Calories   int64  `json:"calories"`    // This capture's estimate
	DailyTotal int64  `json:"daily_total"` // Running total for Date after this capture
	Date       string `json:"date"`
}

// ledgerWriteTimeout bounds a ledger write once it no longer follows the request
const ledgerWriteTimeout = 10 * time.Second

type Service struct {
	sessions  Sessions
	estimator Estimator
	ledger    Ledger
	archive   Archive      // nil disables archiving
	cache     *utils.Cache // nil disables caching of recent entries
	now       func() time.Time
	loc       *time.Location
}

// Option customises a Service
type Option func(*Service)

func WithArchive(a Archive) Option { return func(s *Service) { s.archive = a } }

func WithCache(c *utils.Cache) Option { return func(s *Service) { s.cache = c } }

// WithClock sets the clock and the time zone that decide what "today" is
func WithClock(now func() time.Time, loc *time.Location) Option {
	return func(s *Service) {
		s.now = now
		if loc != nil {
			s.loc = loc
		}
	}
}

func NewService(sessions Sessions, est Estimator, ledger Ledger, opts ...Option) *Service {
	s := &Service{
		sessions:  sessions,
		estimator: est,
		ledger:    ledger,
		now:       time.Now,
		loc:       time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today is the current calendar day in the ledger's time zone
func (s *Service) Today() string {
	return domain.Day(s.now().In(s.loc))
}

// Capture records one image against today's ledger entry of the session's user
func (s *Service) Capture(ctx context.Context, token string, image []byte, mimeType, prompt string) (*Result, error) {
	return s.CaptureAt(ctx, token, image, mimeType, prompt, s.Today())
}

// CaptureAt is Capture with an explicit ledger day
func (s *Service) CaptureAt(ctx context.Context, token string, image []byte, mimeType, prompt, day string) (*Result, error) {
	user, err := s.sessions.CurrentUser(ctx, token)
	if err != nil {
		return nil, err
	}
	if len(image) == 0 {
		return nil, &domain.ValidationError{Msg: "no file"}
	}

	est, err := s.estimator.Estimate(ctx, image, mimeType, prompt)
	if err != nil {
		var up *domain.UpstreamError
		if !errors.As(err, &up) {
			err = &domain.UpstreamError{Op: "estimator", Cause: err}
		}
		logrus.WithFields(logrus.Fields{
			"user_id": user.ID,
			"error":   err.Error(),
		}).Error("Calorie estimation failed")
		return nil, err
	}

	calories, err := ParseCalories(est.Raw)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id": user.ID,
			"raw":     string(est.Raw),
		}).Warn("Estimator returned an unusable value")
		return nil, err
	}

	// The estimate is paid for; the increment must land even if the client leaves.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
	defer cancel()
	total, err := s.ledger.AddCalories(writeCtx, user.ID, day, calories)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id":  user.ID,
			"date":     day,
			"calories": calories,
			"error":    err.Error(),
		}).Error("Ledger update failed")
		return nil, &domain.UpstreamError{Op: "ledger", Cause: err}
	}

	logrus.WithFields(logrus.Fields{
		"user_id":     user.ID,
		"date":        day,
		"calories":    calories,
		"daily_total": total,
	}).Info("Capture recorded")

	s.invalidate(writeCtx, user.ID)
	s.store(writeCtx, user.ID, day, image, mimeType)

	return &Result{Calories: calories, DailyTotal: total, Date: day}, nil
}

// recentPage is the cached form of a Recent call
type recentPage struct {
	Limit   int                  `json:"limit"`
	Entries []domain.LedgerEntry `json:"entries"`
}

// Recent returns the user's latest ledger entries, through the cache when configured
func (s *Service) Recent(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error) {
	key := recentKey(userID)
	if s.cache != nil {
		var page recentPage
		if found, err := s.cache.Get(ctx, key, &page); err == nil && found && page.Limit >= limit {
			return page.Entries[:min(limit, len(page.Entries))], nil
		}
	}
	entries, err := s.ledger.Recent(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, recentPage{Limit: limit, Entries: entries}); err != nil {
			logrus.WithFields(logrus.Fields{"user_id": userID, "error": err.Error()}).Warn("Cache write failed")
		}
	}
	return entries, nil
}

// HistoryPage is one page of a user's ledger, newest day first
type HistoryPage struct {
	Entries    []domain.LedgerEntry `json:"entries"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"page_size"`
	Total      int64                `json:"total"`
	TotalPages int                  `json:"total_pages"`
}

// History returns page (1-based) of the user's ledger entries
func (s *Service) History(ctx context.Context, userID string, page, pageSize int) (*HistoryPage, error) {
	if page < 1 || pageSize < 1 {
		return nil, domain.NewValidationError("page and page_size must be positive")
	}
	entries, total, err := s.ledger.History(ctx, userID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	return &HistoryPage{
		Entries:    entries,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
	}, nil
}

// TodayTotal is the user's running total for today
func (s *Service) TodayTotal(ctx context.Context, userID string) (int64, error) {
	return s.ledger.Total(ctx, userID, s.Today())
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, recentKey(userID)); err != nil {
		logrus.WithFields(logrus.Fields{"user_id": userID, "error": err.Error()}).Warn("Cache invalidation failed")
	}
}

// store archives the image; a failed upload never fails the capture
func (s *Service) store(ctx context.Context, userID, day string, image []byte, mimeType string) {
	if s.archive == nil {
		return
	}
	key, err := s.archive.Store(ctx, userID, day, image, mimeType)
	if err != nil {
		logrus.WithFields(logrus.Fields{"user_id": userID, "error": err.Error()}).Warn("Capture archive failed")
		return
	}
	logrus.WithFields(logrus.Fields{"user_id": userID, "key": key}).Debug("Capture archived")
}

func recentKey(userID string) string {
	return "recent:" + userID
}
