package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/miladnoo/Heray/v1/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, token string) (*models.AdminIdentity, error) {
	args := m.Called(ctx, token)
	identity, _ := args.Get(0).(*models.AdminIdentity)
	return identity, args.Error(1)
}

type eventLog struct {
	mu     sync.Mutex
	events []models.SessionResolved
}

func (l *eventLog) record(ev models.SessionResolved) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) all() []models.SessionResolved {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.SessionResolved(nil), l.events...)
}

func TestSessionGate_Resolve(t *testing.T) {
	verifier := new(MockVerifier)
	founder := &models.AdminIdentity{UserID: "user-1", Email: "founder@herayorg.com"}
	verifier.On("Verify", mock.Anything, "good").Return(founder, nil)
	verifier.On("Verify", mock.Anything, "expired").Return(nil, fmt.Errorf("%w: token is expired", ErrInvalidToken))
	verifier.On("Verify", mock.Anything, "unreachable").Return(nil, errors.New("dial tcp: connection refused"))

	gate := NewSessionGate(verifier, nil)
	ctx := context.Background()

	identity, err := gate.Resolve(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, founder, identity)

	identity, err = gate.Resolve(ctx, "expired")
	assert.NoError(t, err)
	assert.Nil(t, identity)

	identity, err = gate.Resolve(ctx, "")
	assert.NoError(t, err)
	assert.Nil(t, identity)

	_, err = gate.Resolve(ctx, "unreachable")
	assert.Error(t, err)

	verifier.AssertNotCalled(t, "Verify", mock.Anything, "")
}

func TestSessionGate_NoVerifier(t *testing.T) {
	gate := NewSessionGate(nil, nil)
	identity, err := gate.Resolve(context.Background(), "anything")
	assert.NoError(t, err)
	assert.Nil(t, identity)

	_, err = gate.SignIn(context.Background(), "founder@herayorg.com", "pw")
	assert.ErrorIs(t, err, ErrSignInUnavailable)
	_, err = gate.Refresh(context.Background(), "", "refresh")
	assert.ErrorIs(t, err, ErrSignInUnavailable)
}

func TestSessionGate_SignOutNotifiesListeners(t *testing.T) {
	verifier := new(MockVerifier)
	founder := &models.AdminIdentity{Email: "founder@herayorg.com"}
	verifier.On("Verify", mock.Anything, "good").Return(founder, nil)

	gate := NewSessionGate(verifier, nil)
	session := gate.Open("good")

	current, err := session.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, founder, current)

	var log eventLog
	unsubscribe := session.Subscribe(log.record)
	defer unsubscribe()
	assert.Equal(t, 1, gate.ListenerCount())

	// A different request signs the same token out
	require.NoError(t, gate.SignOut(context.Background(), "good"))

	events := log.all()
	require.Len(t, events, 1)
	assert.Nil(t, events[0].Identity)

	current, err = session.Current(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, current, "revoked token must not resolve")
}

func TestSessionGate_Unsubscribe(t *testing.T) {
	gate := NewSessionGate(nil, nil)
	session := gate.Open("token")

	var log eventLog
	unsubscribe := session.Subscribe(log.record)
	other := gate.Open("token").Subscribe(func(models.SessionResolved) {})
	assert.Equal(t, 2, gate.ListenerCount())

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 1, gate.ListenerCount())

	require.NoError(t, gate.SignOut(context.Background(), "token"))
	assert.Empty(t, log.all())

	other()
	assert.Equal(t, 0, gate.ListenerCount())
}

func TestSessionGate_EmptyTokenHasNoListeners(t *testing.T) {
	gate := NewSessionGate(nil, nil)
	unsubscribe := gate.Open("").Subscribe(func(models.SessionResolved) {})
	assert.Equal(t, 0, gate.ListenerCount())
	unsubscribe()
}

func TestSessionGate_WithProvider(t *testing.T) {
	var signedOut []string
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/auth/v1/token" && r.URL.Query().Get("grant_type") == "password":
			_, _ = w.Write([]byte(sessionJSON))
		case r.URL.Path == "/auth/v1/token" && r.URL.Query().Get("grant_type") == "refresh_token":
			_, _ = w.Write([]byte(`{"access_token":"access-2","refresh_token":"refresh-2","expires_in":3600,"token_type":"bearer","user":{"id":"user-1","email":"founder@herayorg.com"}}`))
		case r.URL.Path == "/auth/v1/logout":
			mu.Lock()
			signedOut = append(signedOut, r.Header.Get("Authorization"))
			mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	provider := NewProvider(server.URL, "anon-key", time.Second)
	gate := NewSessionGate(NewProviderVerifier(provider), provider)
	ctx := context.Background()

	var preSignIn eventLog
	stopPreSignIn := gate.Open("access-1").Subscribe(preSignIn.record)

	tokens, err := gate.SignIn(ctx, "founder@herayorg.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "access-1", tokens.AccessToken)

	// Sign-in notifies no one
	assert.Empty(t, preSignIn.all())
	stopPreSignIn()

	session := gate.Open(tokens.AccessToken)
	var log eventLog
	unsubscribe := session.Subscribe(log.record)
	defer unsubscribe()

	refreshed, err := gate.Refresh(ctx, tokens.AccessToken, tokens.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "access-2", refreshed.AccessToken)
	assert.Equal(t, "access-2", session.Token())

	events := log.all()
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Identity)
	assert.Equal(t, "founder@herayorg.com", events[0].Identity.Email)

	require.NoError(t, gate.SignOut(ctx, "access-2"))
	events = log.all()
	require.Len(t, events, 2)
	assert.Nil(t, events[1].Identity)

	mu.Lock()
	assert.Equal(t, []string{"Bearer access-2"}, signedOut)
	mu.Unlock()

	unsubscribe()
	assert.Equal(t, 0, gate.ListenerCount())
}
