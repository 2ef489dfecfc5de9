// Package auth registers users, checks credentials and manages login sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"calorie_tracker/internal/domain"
	"calorie_tracker/internal/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// UserStore persists users; Create returns domain.ErrConflict on a taken username or email
type UserStore interface {
	Create(ctx context.Context, u *domain.User) error
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

// SessionStore persists session records; Get returns domain.ErrNotFound for unknown or expired IDs
type SessionStore interface {
	Save(ctx context.Context, sess domain.Session) error
	Get(ctx context.Context, id string) (*domain.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteUser(ctx context.Context, userID string) error
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,32}$`)

const (
	minPasswordLen = 8
	maxPasswordLen = 72 // bcrypt ignores anything longer
)

type Service struct {
	users     UserStore
	sessions  SessionStore
	secret    string
	ttl       time.Duration
	cost      int
	dummyHash string // compared against when the username is unknown
	now       func() time.Time
	newID     func() string
}

// Option customises a Service
type Option func(*Service)

// WithHashCost sets the bcrypt cost (tests use bcrypt.MinCost)
func WithHashCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(users UserStore, sessions SessionStore, secret string, ttl time.Duration, opts ...Option) (*Service, error) {
	if secret == "" {
		return nil, errors.New("session secret is empty")
	}
	s := &Service{
		users:    users,
		sessions: sessions,
		secret:   secret,
		ttl:      ttl,
		cost:     bcrypt.DefaultCost,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	dummy, err := hashPassword(dummyPassword, s.cost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	s.dummyHash = dummy
	return s, nil
}

// Register creates a user with a freshly salted hash of password
func (s *Service) Register(ctx context.Context, email, username, password string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)
	if err := validateRegistration(email, username, password); err != nil {
		return nil, err
	}

	hash, err := hashPassword(password, s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		ID:           s.newID(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, domain.ErrConflict
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"username": user.Username,
	}).Info("User registered")
	return user, nil
}

// Login checks the credentials and opens a session, returning the signed cookie value
func (s *Service) Login(ctx context.Context, username, password string) (string, *domain.User, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return "", nil, fmt.Errorf("find user: %w", err)
		}
		// same bcrypt work as a real mismatch
		checkPassword(s.dummyHash, password)
		return "", nil, domain.ErrInvalidCredentials
	}
	if !checkPassword(user.PasswordHash, password) {
		return "", nil, domain.ErrInvalidCredentials
	}

	token, err := s.openSession(ctx, user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// openSession stores a fresh session record for who and signs its cookie value
func (s *Service) openSession(ctx context.Context, who domain.Authenticatable) (string, error) {
	now := s.now()
	sess := domain.Session{
		ID:        s.newID(),
		UserID:    who.GetID(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	token, err := utils.GenerateSessionToken(sess.ID, who.GetID(), s.secret, s.ttl, now)
	if err != nil {
		_ = s.sessions.Delete(ctx, sess.ID)
		return "", fmt.Errorf("sign session: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"user_id":  who.GetID(),
		"username": who.GetUsername(),
	}).Info("User logged in")
	return token, nil
}

// CurrentUser resolves a cookie value to its user, or domain.ErrUnauthorized
func (s *Service) CurrentUser(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, domain.ErrUnauthorized
	}
	claims, err := utils.ParseSessionToken(token, s.secret)
	if err != nil {
		return nil, domain.ErrUnauthorized
	}
	sess, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, &domain.UpstreamError{Op: "session store", Cause: err}
	}
	if !sameUser(sess.UserID, claims.Subject) || !s.now().Before(sess.ExpiresAt) {
		return nil, domain.ErrUnauthorized
	}
	user, err := s.users.FindByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, &domain.UpstreamError{Op: "user store", Cause: err}
	}
	return user, nil
}

// Logout destroys the session named by token; an invalid or expired token is not an error
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := utils.ParseSessionToken(token, s.secret)
	if err != nil {
		return nil
	}
	if err := s.sessions.Delete(ctx, claims.SessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	logrus.WithFields(logrus.Fields{"user_id": claims.Subject}).Info("User logged out")
	return nil
}

// LogoutAll destroys every session of the user behind token
func (s *Service) LogoutAll(ctx context.Context, token string) error {
	claims, err := utils.ParseSessionToken(token, s.secret)
	if err != nil {
		return nil
	}
	if err := s.sessions.DeleteUser(ctx, claims.Subject); err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	logrus.WithFields(logrus.Fields{"user_id": claims.Subject}).Info("User logged out everywhere")
	return nil
}

func validateRegistration(email, username, password string) error {
	switch {
	case email == "" || username == "" || password == "":
		return domain.NewValidationError("email, username and password are required")
	case len(email) > 255 || !strings.Contains(email, "@"):
		return domain.NewValidationError("invalid email address")
	case !usernamePattern.MatchString(username):
		return domain.NewValidationError("username must be 3-32 letters, digits, '.', '_' or '-'")
	case len(password) < minPasswordLen || len(password) > maxPasswordLen:
		return domain.NewValidationError("password must be %d-%d characters", minPasswordLen, maxPasswordLen)
	}
	return nil
}
