package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nvakili/kashef/api/domain"
	"github.com/nvakili/kashef/discovery"
)

const maxMessageBytes = 8 * 1024

type TurnHandler struct {
	coordinator *discovery.Coordinator
}

func NewTurnHandler(coordinator *discovery.Coordinator) *TurnHandler {
	return &TurnHandler{coordinator: coordinator}
}

// Create handles POST /conversations/{id}/turns: one user message in, one
// assistant reply out.
func (h *TurnHandler) Create(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")

	var req domain.TurnRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("%w: malformed request body", domain.ErrInvalidInput).Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, fmt.Errorf("%w: message is required", domain.ErrInvalidInput).Error(), http.StatusBadRequest)
		return
	}

	resp, err := h.coordinator.HandleTurn(r.Context(), convID, req.Message)
	if err != nil {
		slog.Error("turn failed", "conversation_id", convID, "error", err)
		respondError(w, "failed to process turn", http.StatusInternalServerError)
		return
	}

	respondJSON(w, resp, http.StatusOK)
}
