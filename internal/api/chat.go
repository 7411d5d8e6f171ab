package api

import (
	"net/http"
	"strconv"

	"github.com/pairloop/pairlink/internal/auth"
	"github.com/pairloop/pairlink/internal/metrics"
	"github.com/pairloop/pairlink/internal/store"
)

type ChatHandler struct {
	users    store.UserStore
	messages store.MessageStore
}

func NewChatHandler(users store.UserStore, messages store.MessageStore) *ChatHandler {
	return &ChatHandler{users: users, messages: messages}
}

// GetHistoryHandler serves the conversation history for the caller's
// couple, newest-first. The coupleId is read from the user row rather
// than the token, so a token minted before pairing still works. An
// optional limit query parameter narrows the window; without it the
// store's default window of 500 applies.
func (h *ChatHandler) GetHistoryHandler(w http.ResponseWriter, r *http.Request) error {
	claims := auth.ClaimsFromContext(r.Context())

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return NewError("invalid limit", http.StatusBadRequest)
		}
		limit = n
	}

	user, err := h.users.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		return NewError("user not found", http.StatusNotFound)
	}
	if user.CoupleID == "" {
		return NewError(store.ErrNoCouple.Error(), http.StatusForbidden)
	}

	messages, err := h.messages.GetMessages(r.Context(), user.CoupleID, limit)
	if err != nil {
		return err
	}

	metrics.HistoryRequests.Inc()
	return WriteData(w, messages)
}
