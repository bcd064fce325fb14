/*
Package auth provides session management for the back office.

PURPOSE:
  Credential login with bcrypt verification, opaque session tokens with
  access/refresh expiry bookkeeping, and a background refresh check that
  keeps an active session from expiring mid-shift.

KEY CONCEPTS:
  - Session:  Opaque token plus its two expiry horizons
  - Profile:  The logged-in user's identity, roles, and permissions
  - Refresh:  Extends the access horizon while the refresh horizon holds

SECURITY NOTES:
  - Passwords are stored as bcrypt hashes and compared in constant time
  - Login returns the same error for unknown email and wrong password
  - Tokens are random UUIDs; possession is the only proof

SEE ALSO:
  - profile.go:     Roles and permission checks
  - store/sqlite:   The production UserStore/SessionStore
  - api/server.go:  Bearer-token middleware built on Resolve
*/
package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidCredentials is returned for unknown emails and wrong
	// passwords alike, so login failures don't reveal which users exist.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrSessionNotFound is returned when a token resolves to nothing.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when the refresh horizon has passed.
	ErrSessionExpired = errors.New("session expired")
)

// =============================================================================
// DOMAIN TYPES
// =============================================================================

// User is a stored back-office user.
type User struct {
	ID           int64
	Email        string
	FullName     string
	PasswordHash string
	Roles        []string
	Permissions  []string
}

// Session is one issued token with its expiry bookkeeping. The access
// horizon gates requests; the refresh horizon gates extending the access
// horizon.
type Session struct {
	Token            string
	UserID           int64
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	CreatedAt        time.Time
}

// AccessValid reports whether the session still passes the access gate.
func (s *Session) AccessValid(now time.Time) bool {
	return now.Before(s.AccessExpiresAt)
}

// RefreshValid reports whether the session can still be refreshed.
func (s *Session) RefreshValid(now time.Time) bool {
	return now.Before(s.RefreshExpiresAt)
}

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// UserStore looks up stored users.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUser(ctx context.Context, id int64) (*User, error)
}

// SessionStore persists issued sessions.
type SessionStore interface {
	SaveSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, token string) (*Session, error)
	UpdateSession(ctx context.Context, session *Session) error
	DeleteSession(ctx context.Context, token string) error
	ListSessions(ctx context.Context) ([]*Session, error)
}

// =============================================================================
// SERVICE
// =============================================================================

const (
	// DefaultAccessTTL is how long a token passes the access gate without
	// a refresh.
	DefaultAccessTTL = 15 * time.Minute

	// DefaultRefreshTTL is how long a session stays refreshable.
	DefaultRefreshTTL = 12 * time.Hour

	// DefaultRefreshCheckInterval paces the background refresh loop.
	DefaultRefreshCheckInterval = time.Minute
)

// Service issues and resolves sessions.
type Service struct {
	Users    UserStore
	Sessions SessionStore

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	now func() time.Time

	mu      sync.Mutex
	stopRef chan struct{} // non-nil while the refresh loop runs
}

// NewService wires a session service over the given stores with default
// expiry horizons.
func NewService(users UserStore, sessions SessionStore) *Service {
	return &Service{
		Users:      users,
		Sessions:   sessions,
		AccessTTL:  DefaultAccessTTL,
		RefreshTTL: DefaultRefreshTTL,
		now:        time.Now,
	}
}

// Login verifies credentials and issues a fresh session.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, *Profile, error) {
	user, err := s.Users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	now := s.now()
	session := &Session{
		Token:            uuid.NewString(),
		UserID:           user.ID,
		AccessExpiresAt:  now.Add(s.AccessTTL),
		RefreshExpiresAt: now.Add(s.RefreshTTL),
		CreatedAt:        now,
	}
	if err := s.Sessions.SaveSession(ctx, session); err != nil {
		return nil, nil, err
	}
	return session, profileOf(user), nil
}

// Resolve maps a bearer token to the logged-in profile. An expired access
// horizon with a live refresh horizon still fails here; the client must
// refresh first.
func (s *Service) Resolve(ctx context.Context, token string) (*Profile, error) {
	session, err := s.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if !session.AccessValid(s.now()) {
		return nil, ErrSessionExpired
	}

	user, err := s.Users.GetUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrSessionNotFound
	}
	return profileOf(user), nil
}

// Refresh extends the access horizon of a session whose refresh horizon
// still holds.
func (s *Service) Refresh(ctx context.Context, token string) (*Session, error) {
	session, err := s.lookup(ctx, token)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !session.RefreshValid(now) {
		return nil, ErrSessionExpired
	}

	session.AccessExpiresAt = now.Add(s.AccessTTL)
	if err := s.Sessions.UpdateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Logout discards the session. Unknown tokens log out successfully.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.Sessions.DeleteSession(ctx, token)
}

func (s *Service) lookup(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	session, err := s.Sessions.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// =============================================================================
// BACKGROUND REFRESH CHECK
// =============================================================================

// StartRefreshCheck starts the background loop that extends the access
// horizon of still-refreshable sessions and purges dead ones. Only one
// loop runs per service; a second start is a no-op.
func (s *Service) StartRefreshCheck(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopRef != nil {
		return // already running
	}
	if interval <= 0 {
		interval = DefaultRefreshCheckInterval
	}

	stop := make(chan struct{})
	s.stopRef = stop
	go s.refreshLoop(interval, stop)
}

// StopRefreshCheck stops the background loop if it runs.
func (s *Service) StopRefreshCheck() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopRef == nil {
		return
	}
	close(s.stopRef)
	s.stopRef = nil
}

func (s *Service) refreshLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.sweepSessions(context.Background())
		}
	}
}

// sweepSessions extends live sessions and deletes ones past their refresh
// horizon. Store errors are skipped; the next tick retries.
func (s *Service) sweepSessions(ctx context.Context) {
	sessions, err := s.Sessions.ListSessions(ctx)
	if err != nil {
		return
	}
	now := s.now()
	for _, session := range sessions {
		if !session.RefreshValid(now) {
			_ = s.Sessions.DeleteSession(ctx, session.Token)
			continue
		}
		if !session.AccessValid(now) {
			continue // the client must refresh explicitly
		}
		session.AccessExpiresAt = now.Add(s.AccessTTL)
		_ = s.Sessions.UpdateSession(ctx, session)
	}
}

// HashPassword produces the stored form of a password. Used by seeding and
// user administration.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
