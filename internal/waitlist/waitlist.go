// Package waitlist records landing page signups and relays them to the
// collaborator backend that owns the waitlist.
package waitlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidEmail is returned when the address cannot be parsed.
	ErrInvalidEmail = errors.New("waitlist: invalid email address")
	// ErrAlreadyJoined is returned when the address is already on the list.
	ErrAlreadyJoined = errors.New("waitlist: already joined")
	// ErrUpstream wraps failures of the collaborator backend.
	ErrUpstream = errors.New("waitlist: upstream failure")
)

// maxEmailLen is the longest address accepted by RFC 5321 paths.
const maxEmailLen = 254

// Signup is one waitlist entry.
type Signup struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists signups. Add returns ErrAlreadyJoined for a known email.
type Store interface {
	Add(ctx context.Context, s Signup) error
	Delete(ctx context.Context, email string) error
	Count(ctx context.Context) (int, error)
}

// Forwarder delivers a signup to the system of record.
type Forwarder interface {
	Forward(ctx context.Context, s Signup) error
}

// Service validates, records and forwards signups.
type Service struct {
	store  Store
	fwd    Forwarder
	logger *slog.Logger
	now    func() time.Time
}

// NewService returns a Service. fwd may be nil to only record signups locally.
func NewService(store Store, fwd Forwarder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		fwd:    fwd,
		logger: logger,
		now:    time.Now,
	}
}

// NormalizeEmail trims and lowercases an address and checks that it is a bare
// addr-spec with a dotted domain.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" || len(email) > maxEmailLen {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	at := strings.LastIndexByte(email, '@')
	domain := email[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// Join adds an email to the waitlist. A signup the upstream rejects is removed
// again so the visitor can retry.
func (s *Service) Join(ctx context.Context, email, source string) (Signup, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return Signup{}, err
	}

	signup := Signup{
		ID:        uuid.New(),
		Email:     email,
		Source:    strings.TrimSpace(source),
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Add(ctx, signup); err != nil {
		if errors.Is(err, ErrAlreadyJoined) {
			return Signup{}, err
		}
		return Signup{}, fmt.Errorf("recording signup: %w", err)
	}

	if s.fwd == nil {
		s.logger.Info("waitlist signup recorded", "id", signup.ID, "source", signup.Source)
		return signup, nil
	}

	if err := s.fwd.Forward(ctx, signup); err != nil {
		if errors.Is(err, ErrAlreadyJoined) {
			return Signup{}, err
		}
		s.logger.Warn("failed to forward waitlist signup", "id", signup.ID, "err", err)
		if derr := s.store.Delete(context.WithoutCancel(ctx), email); derr != nil {
			s.logger.Error("failed to roll back waitlist signup", "id", signup.ID, "err", derr)
		}
		return Signup{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	s.logger.Info("waitlist signup forwarded", "id", signup.ID, "source", signup.Source)
	return signup, nil
}

// Count returns the number of recorded signups.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}
