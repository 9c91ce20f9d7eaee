package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/miladnoo/Heray/v1/auth"
	"github.com/miladnoo/Heray/v1/dashboard"
	"github.com/miladnoo/Heray/v1/database"
	"github.com/miladnoo/Heray/v1/middleware"
	"github.com/miladnoo/Heray/v1/services"
	"github.com/miladnoo/Heray/v1/utils"
)

// maxBodyBytes caps request bodies on every JSON endpoint
const maxBodyBytes = 1 << 20

// V1Handler handles all public and admin routes
type V1Handler struct {
	repo         database.MemberRepository
	registration *services.RegistrationService
	lister       *services.MemberLister
	gate         *auth.SessionGate
	allowList    *auth.AllowList
}

// NewV1Handler wires the intake pipeline and the gated read path
func NewV1Handler(repo database.MemberRepository, gate *auth.SessionGate, allowList *auth.AllowList) (*V1Handler, error) {
	if repo == nil {
		return nil, errors.New("member repository is required")
	}
	if gate == nil {
		return nil, errors.New("session gate is required")
	}
	if allowList == nil {
		allowList = auth.NewAllowList(nil)
	}
	return &V1Handler{
		repo:         repo,
		registration: services.NewRegistrationService(repo),
		lister:       services.NewMemberLister(repo),
		gate:         gate,
		allowList:    allowList,
	}, nil
}

// SetupV1Routes configures all routes on mux
func (h *V1Handler) SetupV1Routes(mux *http.ServeMux) {
	// Public intake: same-origin and cross-origin variants
	mux.Handle("/api/members", utils.PanicRecoveryMiddleware(http.HandlerFunc(h.handleMembers)))
	mux.Handle("/functions/members", utils.PanicRecoveryMiddleware(
		middleware.IntakeCORSMiddleware()(http.HandlerFunc(h.handleMembers)),
	))

	// Admin read path
	mux.Handle("/api/v1/admin/session", utils.PanicRecoveryMiddleware(http.HandlerFunc(h.handleAdminSession)))
	mux.Handle("/api/v1/admin/members", utils.PanicRecoveryMiddleware(http.HandlerFunc(h.handleAdminMembers)))
	mux.Handle("/api/v1/admin/live", utils.PanicRecoveryMiddleware(http.HandlerFunc(h.handleAdminLive)))
}

// HealthHandler reports datastore reachability
func (h *V1Handler) HealthHandler(serviceName string) http.Handler {
	type healthStatus struct {
		Status    string `json:"status"`
		Service   string `json:"service"`
		Datastore string `json:"datastore"`
		Error     string `json:"error,omitempty"`
	}

	return utils.PanicRecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := healthStatus{Status: "healthy", Service: serviceName, Datastore: "healthy"}
		statusCode := http.StatusOK
		if err := h.repo.Ping(ctx); err != nil {
			slog.Warn("Datastore health check failed", "error", err)
			status = healthStatus{Status: "unhealthy", Service: serviceName, Datastore: "unhealthy", Error: err.Error()}
			statusCode = http.StatusServiceUnavailable
		}
		utils.RespondWithJSON(w, statusCode, status)
	}))
}

// newView builds the admin dashboard for one credential
func (h *V1Handler) newView(token string) *dashboard.View {
	session := h.gate.Open(token)
	return dashboard.NewView(session, h.allowList, sessionLister{session: session, lister: h.lister})
}

// sessionLister reads members as the signed-in admin, so datastore read
// policies see the admin's credential. It follows the session across refreshes.
type sessionLister struct {
	session *auth.Session
	lister  *services.MemberLister
}

func (l sessionLister) ListMembers(ctx context.Context) services.MemberListing {
	return l.lister.ListMembers(database.WithAccessToken(ctx, l.session.Token()))
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}
