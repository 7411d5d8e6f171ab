package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/pairloop/pairlink/internal/auth"
	"github.com/pairloop/pairlink/internal/store"
)

type UserHandler struct {
	users        store.UserStore
	tokenOptions auth.TokenOptions
}

func NewUserHandler(users store.UserStore, tokenOptions auth.TokenOptions) *UserHandler {
	return &UserHandler{users: users, tokenOptions: tokenOptions}
}

type SignupPayload struct {
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Password string `json:"password"`
}

type SigninPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      UserView  `json:"user"`
}

// UserView is the public shape of a user, claims-compatible with the
// token payload the client decodes.
type UserView struct {
	ID       string `json:"_id"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	CoupleID string `json:"coupleId,omitempty"`
}

func NewUserView(user store.User) UserView {
	return UserView{
		ID:       user.ID,
		Email:    user.Email,
		FullName: user.FullName,
		CoupleID: user.CoupleID,
	}
}

func (h *UserHandler) SignupHandler(w http.ResponseWriter, r *http.Request) error {
	defer r.Body.Close()
	var payload SignupPayload
	if err := DecodeJSON(r.Body, &payload); err != nil {
		return NewError("invalid json", http.StatusBadRequest)
	}

	user, err := h.users.CreateUser(r.Context(), store.UserCreateInput{
		Email:    payload.Email,
		FullName: payload.FullName,
		Password: payload.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateEmail):
			return NewError(err.Error(), http.StatusConflict)
		case errors.Is(err, store.ErrInvalidUser):
			return NewError(err.Error(), http.StatusBadRequest)
		default:
			return err
		}
	}

	return h.respondWithToken(w, *user, http.StatusCreated)
}

func (h *UserHandler) SigninHandler(w http.ResponseWriter, r *http.Request) error {
	defer r.Body.Close()
	var payload SigninPayload
	if err := DecodeJSON(r.Body, &payload); err != nil {
		return NewError("invalid json", http.StatusBadRequest)
	}

	user, err := h.users.VerifyUser(r.Context(), payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCredentials) {
			return NewError(err.Error(), http.StatusUnauthorized)
		}
		return err
	}

	return h.respondWithToken(w, *user, http.StatusOK)
}

func (h *UserHandler) MeHandler(w http.ResponseWriter, r *http.Request) error {
	claims := auth.ClaimsFromContext(r.Context())

	user, err := h.users.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		return NewError("user not found", http.StatusNotFound)
	}
	return WriteData(w, NewUserView(*user))
}

func (h *UserHandler) respondWithToken(w http.ResponseWriter, user store.User, code int) error {
	token, exp, err := auth.NewToken(user, h.tokenOptions)
	if err != nil {
		return err
	}
	return WriteDataWithStatus(w, TokenResponse{
		Token:     token,
		ExpiresAt: exp,
		User:      NewUserView(user),
	}, code)
}
