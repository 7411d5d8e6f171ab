package api

import (
	"errors"
	"net/http"

	"github.com/pairloop/pairlink/internal/auth"
	"github.com/pairloop/pairlink/internal/store"
)

type CoupleHandler struct {
	users        store.UserStore
	couples      store.CoupleStore
	tokenOptions auth.TokenOptions
}

func NewCoupleHandler(users store.UserStore, couples store.CoupleStore, tokenOptions auth.TokenOptions) *CoupleHandler {
	return &CoupleHandler{users: users, couples: couples, tokenOptions: tokenOptions}
}

type InviteResponse struct {
	InviteCode string `json:"inviteCode"`
	// Token is reissued so the client's claims carry the new coupleId.
	Token string `json:"token"`
}

type JoinPayload struct {
	InviteCode string `json:"inviteCode"`
}

type JoinResponse struct {
	CoupleID string `json:"coupleId"`
	Token    string `json:"token"`
}

func (h *CoupleHandler) InviteHandler(w http.ResponseWriter, r *http.Request) error {
	claims := auth.ClaimsFromContext(r.Context())

	code, err := h.couples.CreateInvite(r.Context(), claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadyPaired):
			return NewError(err.Error(), http.StatusConflict)
		case errors.Is(err, store.ErrInvalidUser):
			return NewError(err.Error(), http.StatusBadRequest)
		default:
			return err
		}
	}

	token, err := h.reissueToken(r, claims.UserID)
	if err != nil {
		return err
	}
	return WriteDataWithStatus(w, InviteResponse{InviteCode: code, Token: token}, http.StatusCreated)
}

func (h *CoupleHandler) JoinHandler(w http.ResponseWriter, r *http.Request) error {
	defer r.Body.Close()
	var payload JoinPayload
	if err := DecodeJSON(r.Body, &payload); err != nil {
		return NewError("invalid json", http.StatusBadRequest)
	}

	claims := auth.ClaimsFromContext(r.Context())

	coupleID, err := h.couples.JoinWithInvite(r.Context(), claims.UserID, payload.InviteCode)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInvalidInvite):
			return NewError(err.Error(), http.StatusNotFound)
		case errors.Is(err, store.ErrAlreadyPaired):
			return NewError(err.Error(), http.StatusConflict)
		default:
			return err
		}
	}

	token, err := h.reissueToken(r, claims.UserID)
	if err != nil {
		return err
	}
	return WriteData(w, JoinResponse{CoupleID: coupleID, Token: token})
}

func (h *CoupleHandler) reissueToken(r *http.Request, userID string) (string, error) {
	user, err := h.users.GetUserByID(r.Context(), userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", NewError("user not found", http.StatusNotFound)
	}
	token, _, err := auth.NewToken(*user, h.tokenOptions)
	return token, err
}
