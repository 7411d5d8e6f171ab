package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/pairloop/pairlink/internal/auth"
	"github.com/pairloop/pairlink/internal/hub"
	"github.com/pairloop/pairlink/internal/metrics"
	"github.com/pairloop/pairlink/internal/store"
)

// WSHandler authenticates websocket upgrades and runs the chat logic on
// the hub's event loop.
type WSHandler struct {
	hub      *hub.Hub
	users    store.UserStore
	couples  store.CoupleStore
	messages store.MessageStore
	secret   []byte
	logger   *slog.Logger
}

func NewWSHandler(h *hub.Hub, users store.UserStore, couples store.CoupleStore,
	messages store.MessageStore, secret []byte, logger *slog.Logger) *WSHandler {
	handler := &WSHandler{
		hub:      h,
		users:    users,
		couples:  couples,
		messages: messages,
		secret:   secret,
		logger:   logger,
	}
	h.OnPacket(handler.handlePacket)
	return handler
}

// ServeHTTP upgrades an authenticated request into a hub connection. The
// user must be paired: without a couple there is no channel to attach to.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromRequest(r)
	claims, err := auth.VerifyToken(token, h.secret)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	user, err := h.users.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if user == nil {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}
	if user.CoupleID == "" {
		http.Error(w, store.ErrNoCouple.Error(), http.StatusForbidden)
		return
	}

	h.hub.ServeWS(w, r, user.ID, user.CoupleID)
}

// handlePacket persists an inbound send-message and echoes it to every
// member of the couple, the sender included. The echo is the sender's
// delivery confirmation; the client renders nothing until it arrives.
func (h *WSHandler) handlePacket(ctx context.Context, hb *hub.Hub, p *hub.InPacket) {
	if p.Event != hub.EventSendMessage {
		h.logger.Debug("ignoring event", slog.String("event", p.Event))
		return
	}

	var payload hub.SendPayload
	if err := json.Unmarshal(p.Data, &payload); err != nil {
		metrics.DroppedPackets.Inc()
		h.logger.Error("drop malformed send-message", slog.String("err", err.Error()))
		return
	}

	msg, err := h.messages.SaveMessage(ctx, store.MessageCreateInput{
		CoupleID: p.CoupleID,
		SenderID: p.SenderID,
		Text:     payload.Text,
	})
	if err != nil {
		metrics.DroppedPackets.Inc()
		h.logger.Error("save message", slog.String("err", err.Error()))
		return
	}
	metrics.MessagesPersisted.Inc()

	members, err := h.couples.GetCoupleMembers(ctx, p.CoupleID)
	if err != nil {
		h.logger.Error("get couple members", slog.String("err", err.Error()))
		return
	}

	env, err := hub.NewEnvelope(hub.EventReceiveMessage, msg)
	if err != nil {
		h.logger.Error("encode receive-message", slog.String("err", err.Error()))
		return
	}
	hb.SendToUsers(env, members...)
}
