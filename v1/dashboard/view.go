package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/miladnoo/Heray/v1/models"
	"github.com/miladnoo/Heray/v1/services"
)

// State is the admin view's position in the session lifecycle
type State string

const (
	StateLoading         State = "loading"
	StateUnauthenticated State = "unauthenticated"
	StateUnauthorized    State = "unauthorized"
	StateAuthorized      State = "authorized"
)

// handleTimeout bounds the work a session notification triggers
const handleTimeout = 10 * time.Second

// SessionSource supplies the current identity and announces changes to it
type SessionSource interface {
	Current(ctx context.Context) (*models.AdminIdentity, error)
	Subscribe(fn func(models.SessionResolved)) (unsubscribe func())
}

// Authorizer decides whether an email may see the member list
type Authorizer interface {
	IsAdmin(email string) bool
}

// Lister loads the member list for an authorized admin
type Lister interface {
	ListMembers(ctx context.Context) services.MemberListing
}

// Snapshot is the renderable state of the view
type Snapshot struct {
	State   State           `json:"state"`
	Email   string          `json:"email,omitempty"`
	Members []models.Member `json:"members"`
	Warning string          `json:"warning,omitempty"`
}

// View is the admin dashboard state machine. Member data is loaded only
// once the identity has passed the authorizer.
type View struct {
	source     SessionSource
	authorizer Authorizer
	lister     Lister

	mu          sync.Mutex
	state       State
	identity    *models.AdminIdentity
	listing     services.MemberListing
	onChange    func(Snapshot)
	unsubscribe func()
}

// NewView creates a view in the loading state
func NewView(source SessionSource, authorizer Authorizer, lister Lister) *View {
	return &View{
		source:     source,
		authorizer: authorizer,
		lister:     lister,
		state:      StateLoading,
	}
}

// OnChange registers fn to receive a snapshot after every transition driven by a session notification
func (v *View) OnChange(fn func(Snapshot)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onChange = fn
}

// Start subscribes to session changes and resolves the initial state.
// An error leaves the view in the loading state.
func (v *View) Start(ctx context.Context) error {
	detached := context.WithoutCancel(ctx)
	unsubscribe := v.source.Subscribe(func(ev models.SessionResolved) {
		hctx, cancel := context.WithTimeout(detached, handleTimeout)
		defer cancel()
		v.Handle(hctx, ev)
	})

	v.mu.Lock()
	v.unsubscribe = unsubscribe
	v.mu.Unlock()

	identity, err := v.source.Current(ctx)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	// A notification may have resolved the view while Current was in flight
	if v.state == StateLoading {
		v.evaluate(ctx, identity)
	}
	return nil
}

// Handle applies a session notification and reports the new snapshot to OnChange
func (v *View) Handle(ctx context.Context, ev models.SessionResolved) {
	v.mu.Lock()
	changed := v.transition(ctx, ev.Identity)
	snapshot := v.snapshotLocked()
	onChange := v.onChange
	v.mu.Unlock()

	if changed && onChange != nil {
		onChange(snapshot)
	}
}

// Snapshot returns the current renderable state
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

// Close removes the session subscription. It is safe to call more than once.
func (v *View) Close() {
	v.mu.Lock()
	unsubscribe := v.unsubscribe
	v.unsubscribe = nil
	v.onChange = nil
	v.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// transition reports whether the notification changed what the view shows
func (v *View) transition(ctx context.Context, identity *models.AdminIdentity) bool {
	switch v.state {
	case StateUnauthenticated:
		if identity == nil {
			return false
		}
	case StateUnauthorized:
		// Stays denied until sign-out or a different identity
		if identity != nil && sameEmail(identity, v.identity) {
			return false
		}
	}
	v.evaluate(ctx, identity)
	return true
}

// evaluate runs authenticate, authorize, then list
func (v *View) evaluate(ctx context.Context, identity *models.AdminIdentity) {
	v.identity = identity
	v.listing = services.MemberListing{}

	switch {
	case identity == nil:
		v.state = StateUnauthenticated
	case !v.authorizer.IsAdmin(identity.Email):
		v.state = StateUnauthorized
	default:
		v.state = StateAuthorized
		v.listing = v.lister.ListMembers(ctx)
	}
}

func (v *View) snapshotLocked() Snapshot {
	snapshot := Snapshot{
		State:   v.state,
		Members: []models.Member{},
	}
	if v.identity != nil {
		snapshot.Email = v.identity.Email
	}
	if v.state == StateAuthorized {
		if v.listing.Members != nil {
			snapshot.Members = append(snapshot.Members, v.listing.Members...)
		}
		snapshot.Warning = v.listing.Warning
	}
	return snapshot
}

func sameEmail(a, b *models.AdminIdentity) bool {
	return a != nil && b != nil && models.NormalizeEmail(a.Email) == models.NormalizeEmail(b.Email)
}
