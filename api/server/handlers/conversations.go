package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nvakili/kashef/api/domain"
	"github.com/nvakili/kashef/discovery"
	"github.com/nvakili/kashef/shared/id"
)

type ConversationHandler struct {
	states *discovery.StateStore
}

func NewConversationHandler(states *discovery.StateStore) *ConversationHandler {
	return &ConversationHandler{states: states}
}

// Create mints a conversation id. State materializes lazily on the first
// turn, so this only hands out the identifier the client will post turns to.
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"id": id.NewConversation()}, http.StatusCreated)
}

// Get returns the dialogue position for one conversation.
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")

	conv, ok := h.states.Get(convID)
	if !ok {
		respondError(w, fmt.Errorf("conversation %s: %w", convID, domain.ErrNotFound).Error(), http.StatusNotFound)
		return
	}

	respondJSON(w, domain.NewConversationView(conv), http.StatusOK)
}

// Delete evicts a conversation's state immediately.
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.states.Evict(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}
