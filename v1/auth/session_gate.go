package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/miladnoo/Heray/monitoring"
	"github.com/miladnoo/Heray/v1/models"
)

// ErrSignInUnavailable is returned when no auth provider is configured
var ErrSignInUnavailable = errors.New("admin sign-in is not configured")

// revocationTTL outlives any access token the provider issues
const revocationTTL = 24 * time.Hour

// SessionGate resolves session credentials to admin identities and
// notifies live listeners when a session signs out or is refreshed
type SessionGate struct {
	verifier TokenVerifier
	provider *Provider

	mu        sync.Mutex
	listeners map[string]map[*subscription]struct{}
	revoked   map[string]time.Time
}

type subscription struct {
	session *Session
	fn      func(models.SessionResolved)
}

// Session is a handle on one credential. It follows the credential across refreshes.
type Session struct {
	gate  *SessionGate
	token string // guarded by gate.mu
}

// NewSessionGate creates a gate. A nil verifier resolves every credential to
// no session; a nil provider disables sign-in, refresh and provider sign-out.
func NewSessionGate(verifier TokenVerifier, provider *Provider) *SessionGate {
	return &SessionGate{
		verifier:  verifier,
		provider:  provider,
		listeners: make(map[string]map[*subscription]struct{}),
		revoked:   make(map[string]time.Time),
	}
}

// Resolve returns the identity behind token, or nil when there is no valid
// session. An error means the credential could not be checked.
func (g *SessionGate) Resolve(ctx context.Context, token string) (*models.AdminIdentity, error) {
	if token == "" || g.verifier == nil || g.isRevoked(token) {
		return nil, nil
	}
	identity, err := g.verifier.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return nil, nil
		}
		return nil, err
	}
	return identity, nil
}

// Open returns a session handle for token
func (g *SessionGate) Open(token string) *Session {
	return &Session{gate: g, token: token}
}

// SignIn authenticates with the provider. Nothing can be listening on the
// issued token yet, so no listener is notified.
func (g *SessionGate) SignIn(ctx context.Context, email, password string) (*models.SessionTokens, error) {
	if g.provider == nil {
		return nil, ErrSignInUnavailable
	}
	tokens, err := g.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		monitoring.RecordBusinessEvent(ctx, "admin_sign_in", false)
		return nil, err
	}
	monitoring.RecordBusinessEvent(ctx, "admin_sign_in", true)
	return tokens, nil
}

// Refresh exchanges refreshToken for new credentials. Listeners on
// previousToken move to the new access token and receive the identity.
func (g *SessionGate) Refresh(ctx context.Context, previousToken, refreshToken string) (*models.SessionTokens, error) {
	if g.provider == nil {
		return nil, ErrSignInUnavailable
	}
	tokens, err := g.provider.RefreshSession(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	identity := tokens.User
	if identity == nil {
		if identity, err = g.Resolve(ctx, tokens.AccessToken); err != nil {
			slog.Warn("Failed to resolve refreshed session", "error", err)
		}
	}

	if previousToken != "" && previousToken != tokens.AccessToken {
		g.rotate(previousToken, tokens.AccessToken)
	}
	g.publish(tokens.AccessToken, models.SessionResolved{Identity: identity})
	return tokens, nil
}

// SignOut ends the session behind token. The token stops resolving locally
// even if the provider is unreachable, and its listeners are told the session ended.
func (g *SessionGate) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	g.revoke(token)
	g.publish(token, models.SessionResolved{})

	if g.provider == nil {
		return nil
	}
	return g.provider.SignOut(ctx, token)
}

// ListenerCount returns the number of live subscriptions
func (g *SessionGate) ListenerCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, subs := range g.listeners {
		n += len(subs)
	}
	return n
}

func (g *SessionGate) publish(token string, event models.SessionResolved) {
	g.mu.Lock()
	fns := make([]func(models.SessionResolved), 0, len(g.listeners[token]))
	for sub := range g.listeners[token] {
		fns = append(fns, sub.fn)
	}
	g.mu.Unlock()

	for _, fn := range fns {
		fn(event)
	}
}

func (g *SessionGate) rotate(from, to string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	subs, ok := g.listeners[from]
	if !ok {
		return
	}
	delete(g.listeners, from)
	if g.listeners[to] == nil {
		g.listeners[to] = make(map[*subscription]struct{}, len(subs))
	}
	for sub := range subs {
		sub.session.token = to
		g.listeners[to][sub] = struct{}{}
	}
}

func (g *SessionGate) revoke(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	for t, at := range g.revoked {
		if now.Sub(at) > revocationTTL {
			delete(g.revoked, t)
		}
	}
	g.revoked[token] = now
}

func (g *SessionGate) isRevoked(token string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.revoked[token]
	return ok
}

// Token returns the credential the session currently follows
func (s *Session) Token() string {
	s.gate.mu.Lock()
	defer s.gate.mu.Unlock()
	return s.token
}

// Current resolves the session's identity now
func (s *Session) Current(ctx context.Context) (*models.AdminIdentity, error) {
	return s.gate.Resolve(ctx, s.Token())
}

// Subscribe registers fn for session changes. Listeners run on the goroutine
// that caused the change. The returned func removes the listener and is safe
// to call more than once.
func (s *Session) Subscribe(fn func(models.SessionResolved)) func() {
	sub := &subscription{session: s, fn: fn}

	g := s.gate
	g.mu.Lock()
	if s.token != "" {
		if g.listeners[s.token] == nil {
			g.listeners[s.token] = make(map[*subscription]struct{})
		}
		g.listeners[s.token][sub] = struct{}{}
	}
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			token := s.token
			if subs, ok := g.listeners[token]; ok {
				delete(subs, sub)
				if len(subs) == 0 {
					delete(g.listeners, token)
				}
			}
		})
	}
}
