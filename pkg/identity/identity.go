// Package identity resolves the authenticated user from the stored bearer
// credential. Resolution must succeed before the transport or the history
// loader may be used: message classification and the push channel's auth
// both depend on it.
package identity

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pairloop/pairlink/pkg/chat"
)

// Identity is the authenticated user as described by the token claims.
type Identity struct {
	UserID   string
	Email    string
	Name     string
	CoupleID string
	// Token is the raw bearer credential, passed as-is to the transport
	// and the history loader.
	Token string
}

// Claims mirrors the token payload issued by the server.
type Claims struct {
	UserID   string `json:"_id"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	CoupleID string `json:"coupleId,omitempty"`
	jwt.RegisteredClaims
}

// Resolve reads the credential from the store and decodes the identity
// from it. The token signature is not verified here: the client does not
// hold the signing secret, and the server re-verifies the token on every
// request. An empty, missing, or placeholder credential resolves to
// chat.ErrUnauthenticated.
func Resolve(store Store) (Identity, error) {
	token, err := store.Get(TokenKey)
	if err != nil {
		return Identity{}, fmt.Errorf("read credential: %w", err)
	}
	return FromToken(token)
}

// FromToken decodes an identity from a raw bearer token.
func FromToken(token string) (Identity, error) {
	if !Usable(token) {
		return Identity{}, chat.ErrUnauthenticated
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", chat.ErrUnauthenticated, err)
	}
	if claims.UserID == "" {
		return Identity{}, fmt.Errorf("%w: token has no user id", chat.ErrUnauthenticated)
	}

	return Identity{
		UserID:   claims.UserID,
		Email:    claims.Email,
		Name:     claims.FullName,
		CoupleID: claims.CoupleID,
		Token:    token,
	}, nil
}

// Usable reports whether a stored credential value counts as present.
// Some credential stores hand back literal "null"/"undefined" strings for
// absent values; those are treated the same as empty.
func Usable(token string) bool {
	switch token {
	case "", "null", "undefined":
		return false
	}
	return true
}
