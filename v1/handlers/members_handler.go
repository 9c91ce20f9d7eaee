package handlers

import (
	"log/slog"
	"net/http"

	"github.com/miladnoo/Heray/v1/services"
	"github.com/miladnoo/Heray/v1/utils"
)

// handleMembers accepts public signups
func (h *V1Handler) handleMembers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		slog.Error("Failed to read registration body", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, services.MsgInternalError)
		return
	}

	result := h.registration.Register(r.Context(), body)
	utils.RespondWithJSON(w, result.Status, result.Body)
}
