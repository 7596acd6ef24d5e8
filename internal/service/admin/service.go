// Package admin implements the operator control plane: password login, opaque tokens,
// the online-user listing and the history purge.
package admin

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/relay-chat/backend/internal/errs"
)

// Principal is the name recorded for every token minted by Login.
const Principal = "admin"

const tokenBytes = 24

// Token is an issued admin credential. ExpiresAt is zero when tokens never expire.
type Token struct {
	Value     string    `json:"token"`
	Principal string    `json:"principal"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

func (t Token) expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// OnlineLister reports the usernames currently bound.
type OnlineLister interface {
	Usernames() []string
}

// HistoryPurger clears persisted messages.
type HistoryPurger interface {
	ClearMessages(ctx context.Context) error
}

// ClearBroadcaster tells every connected client the history is gone.
type ClearBroadcaster interface {
	ClearAll() int
}

// Service owns the admin token table.
type Service struct {
	mu     sync.Mutex
	tokens map[string]Token

	verifier CredentialVerifier
	online   OnlineLister
	history  HistoryPurger
	notifier ClearBroadcaster
	ttl      time.Duration
	now      func() time.Time
	log      *zap.Logger
}

// NewService wires the control plane. ttl <= 0 disables expiry.
func NewService(verifier CredentialVerifier, online OnlineLister, history HistoryPurger, notifier ClearBroadcaster, ttl time.Duration, log *zap.Logger) *Service {
	if ttl < 0 {
		ttl = 0
	}
	return &Service{
		tokens:   make(map[string]Token),
		verifier: verifier,
		online:   online,
		history:  history,
		notifier: notifier,
		ttl:      ttl,
		now:      time.Now,
		log:      log.Named("admin"),
	}
}

// Login exchanges the operator password for a fresh token.
func (s *Service) Login(password string) (Token, error) {
	if password == "" {
		return Token{}, fmt.Errorf("password required: %w", errs.ErrInvalidInput)
	}
	if !s.verifier.Verify(password) {
		s.log.Warn("admin login rejected")
		return Token{}, fmt.Errorf("invalid password: %w", errs.ErrUnauthorized)
	}

	value, err := newTokenValue()
	if err != nil {
		return Token{}, fmt.Errorf("mint token: %w", err)
	}

	now := s.now()
	token := Token{Value: value, Principal: Principal, IssuedAt: now}
	if s.ttl > 0 {
		token.ExpiresAt = now.Add(s.ttl)
	}

	s.mu.Lock()
	s.tokens[value] = token
	s.mu.Unlock()

	s.log.Info("admin logged in", zap.String("principal", token.Principal))
	return token, nil
}

// Logout revokes value. Unknown tokens are rejected like any other guarded call.
func (s *Service) Logout(value string) error {
	if _, err := s.RequireAdmin(value); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.tokens, value)
	s.mu.Unlock()
	return nil
}

// RequireAdmin resolves value to a live token.
func (s *Service) RequireAdmin(value string) (Token, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Token{}, fmt.Errorf("missing token: %w", errs.ErrUnauthorized)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[value]
	if !ok {
		return Token{}, fmt.Errorf("unknown token: %w", errs.ErrUnauthorized)
	}
	if token.expired(s.now()) {
		delete(s.tokens, value)
		return Token{}, fmt.Errorf("expired token: %w", errs.ErrUnauthorized)
	}
	return token, nil
}

// ListOnlineUsers returns the bound usernames.
func (s *Service) ListOnlineUsers(value string) ([]string, error) {
	if _, err := s.RequireAdmin(value); err != nil {
		return nil, err
	}
	return s.online.Usernames(), nil
}

// PurgeHistory clears the store and, only when that succeeded, broadcasts chat cleared.
func (s *Service) PurgeHistory(ctx context.Context, value string) error {
	token, err := s.RequireAdmin(value)
	if err != nil {
		return err
	}

	if err := s.history.ClearMessages(ctx); err != nil {
		s.log.Error("purge history failed", zap.Error(err))
		return fmt.Errorf("purge history: %w: %w", errs.ErrStorageFailure, err)
	}

	delivered := s.notifier.ClearAll()
	s.log.Info("history purged", zap.String("principal", token.Principal), zap.Int("notified", delivered))
	return nil
}

// Sweep drops expired tokens and returns how many were removed.
func (s *Service) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for value, token := range s.tokens {
		if token.expired(now) {
			delete(s.tokens, value)
			removed++
		}
	}
	return removed
}

// Run sweeps expired tokens every interval until ctx is done. It returns at once when
// tokens never expire.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if s.ttl == 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.log.Debug("swept admin tokens", zap.Int("removed", n))
			}
		}
	}
}

func newTokenValue() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
