package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/miladnoo/Heray/v1/auth"
	"github.com/miladnoo/Heray/v1/dashboard"
	"github.com/miladnoo/Heray/v1/models"
	"github.com/miladnoo/Heray/v1/utils"
)

// adminViewResponse is the dashboard snapshot served over HTTP
type adminViewResponse struct {
	dashboard.Snapshot
	Error string `json:"error,omitempty"`
}

// sessionResponse is returned by sign-in and refresh
type sessionResponse struct {
	models.SessionTokens
	View dashboard.Snapshot `json:"view"`
}

// handleAdminSession handles sign-in (POST), refresh (PUT) and sign-out (DELETE)
func (h *V1Handler) handleAdminSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.signIn(w, r)
	case http.MethodPut:
		h.refreshSession(w, r)
	case http.MethodDelete:
		h.signOut(w, r)
	default:
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *V1Handler) signIn(w http.ResponseWriter, r *http.Request) {
	var req models.SignInRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	tokens, err := h.gate.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondWithAuthError(w, "Admin sign-in failed", err)
		return
	}
	h.respondWithSession(w, r, tokens)
}

func (h *V1Handler) refreshSession(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshSessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Refresh token is required")
		return
	}

	// The bearer, when present, names the session whose live listeners follow the new token
	previous, _ := utils.ExtractBearerToken(r)

	tokens, err := h.gate.Refresh(r.Context(), previous, req.RefreshToken)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		err = auth.ErrInvalidToken
	}
	if err != nil {
		h.respondWithAuthError(w, "Admin session refresh failed", err)
		return
	}
	h.respondWithSession(w, r, tokens)
}

func (h *V1Handler) signOut(w http.ResponseWriter, r *http.Request) {
	token, err := utils.ExtractBearerToken(r)
	if err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	if err := h.gate.SignOut(r.Context(), token); err != nil {
		// The credential is already revoked locally
		slog.Warn("Auth provider sign-out failed", "error", err)
	}
	utils.RespondWithJSON(w, http.StatusOK, models.MessageResponse{Message: "Signed out"})
}

// handleAdminMembers serves the gated member list
func (h *V1Handler) handleAdminMembers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	token, _ := utils.ExtractBearerToken(r)
	view := h.newView(token)
	defer view.Close()

	if err := view.Start(r.Context()); err != nil {
		slog.Error("Failed to resolve admin session", "error", err)
		utils.RespondWithError(w, http.StatusServiceUnavailable, "Unable to resolve session")
		return
	}

	snapshot := view.Snapshot()
	status, message := viewStatus(snapshot)
	utils.RespondWithJSON(w, status, adminViewResponse{Snapshot: snapshot, Error: message})
}

func (h *V1Handler) respondWithSession(w http.ResponseWriter, r *http.Request, tokens *models.SessionTokens) {
	view := h.newView(tokens.AccessToken)
	defer view.Close()

	if err := view.Start(r.Context()); err != nil {
		slog.Warn("Failed to resolve new admin session", "error", err)
	}
	utils.RespondWithJSON(w, http.StatusOK, sessionResponse{SessionTokens: *tokens, View: view.Snapshot()})
}

func (h *V1Handler) respondWithAuthError(w http.ResponseWriter, logMsg string, err error) {
	var providerErr *auth.ProviderError
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, auth.ErrInvalidToken):
		utils.RespondWithError(w, http.StatusUnauthorized, "Session expired")
	case errors.Is(err, auth.ErrSignInUnavailable):
		utils.RespondWithError(w, http.StatusServiceUnavailable, "Admin sign-in is not configured")
	case errors.As(err, &providerErr):
		slog.Error(logMsg, "error", err, "status", providerErr.StatusCode)
		utils.RespondWithError(w, http.StatusBadGateway, providerErr.Message)
	default:
		slog.Error(logMsg, "error", err)
		utils.RespondWithError(w, http.StatusBadGateway, "Auth provider unavailable")
	}
}

func viewStatus(s dashboard.Snapshot) (int, string) {
	switch s.State {
	case dashboard.StateAuthorized:
		return http.StatusOK, ""
	case dashboard.StateUnauthorized:
		return http.StatusForbidden, "Access denied"
	default:
		return http.StatusUnauthorized, "Authentication required"
	}
}
