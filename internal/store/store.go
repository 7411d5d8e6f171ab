package store

import (
	"context"
	"errors"
	"time"
)

// User represents a registered account. Password is the bcrypt hash and
// never leaves the store layer in responses.
type User struct {
	ID        string    `json:"_id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	Password  string    `json:"-"`
	CoupleID  string    `json:"coupleId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Couple is the conversation channel scope: exactly one per pair of users.
type Couple struct {
	ID         string    `json:"id"`
	InviteCode string    `json:"inviteCode,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Message is a persisted chat message. ID and CreatedAt are assigned by
// the store at save time; clients never supply either.
type Message struct {
	ID        string    `json:"_id"`
	CoupleID  string    `json:"-"`
	SenderID  string    `json:"senderId"`
	Text      string    `json:"text,omitempty"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

var (
	// ErrDuplicateEmail is returned when signing up with a taken email.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidCredentials is returned when signin fails.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidUser is returned when a user is not found.
	ErrInvalidUser = errors.New("invalid user")
	// ErrAlreadyPaired is returned when a paired user creates or redeems
	// an invite.
	ErrAlreadyPaired = errors.New("already in a couple")
	// ErrInvalidInvite is returned when an invite code does not exist or
	// has already been redeemed.
	ErrInvalidInvite = errors.New("invalid invite code")
	// ErrNoCouple is returned when an operation needs a couple the user
	// does not have.
	ErrNoCouple = errors.New("not in a couple")
	// ErrInvalidMessage is returned when a message has no payload.
	ErrInvalidMessage = errors.New("invalid message")
)

// UserCreateInput is the input for creating a user. Password is plain
// text here and hashed by the store.
type UserCreateInput struct {
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"fullName" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

// MessageCreateInput is the input for persisting a message.
type MessageCreateInput struct {
	CoupleID string
	SenderID string
	Text     string
	Image    string
}

type UserStore interface {
	// CreateUser creates a user with a hashed password.
	// It returns ErrDuplicateEmail if the email is taken.
	CreateUser(ctx context.Context, input UserCreateInput) (*User, error)

	// GetUserByID returns the user or nil if not found.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByEmail returns the user or nil if not found.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// VerifyUser checks the email/password pair and returns the user.
	// It returns ErrInvalidCredentials on any mismatch.
	VerifyUser(ctx context.Context, email, password string) (*User, error)
}

type CoupleStore interface {
	// CreateInvite creates a couple with the user as its first member and
	// returns the invite code. ErrAlreadyPaired if the user is paired.
	CreateInvite(ctx context.Context, userID string) (string, error)

	// JoinWithInvite redeems an invite code, completing the couple, and
	// returns the couple ID. ErrInvalidInvite if the code is unknown or
	// spent, ErrAlreadyPaired if the joining user is paired.
	JoinWithInvite(ctx context.Context, userID, code string) (string, error)

	// GetCoupleMembers returns the user IDs in the couple.
	GetCoupleMembers(ctx context.Context, coupleID string) ([]string, error)
}

type MessageStore interface {
	// SaveMessage persists a message, assigning its ID and CreatedAt.
	// ErrInvalidMessage if both text and image are empty.
	SaveMessage(ctx context.Context, input MessageCreateInput) (*Message, error)

	// GetMessages returns the couple's messages newest-first. A zero
	// limit defaults to 500.
	GetMessages(ctx context.Context, coupleID string, limit int) ([]Message, error)
}
