package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

// SQLiteStore implements UserStore, CoupleStore, and MessageStore on a
// single sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) CreateUser(ctx context.Context, input UserCreateInput) (*User, error) {
	if err := validate.Struct(&input); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUser, err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("GenerateFromPassword: %w", err)
	}

	user := &User{
		ID:        uuid.New().String(),
		Email:     strings.ToLower(input.Email),
		FullName:  input.FullName,
		CreatedAt: time.Now().UTC(),
	}

	query := `INSERT INTO users (id, email, full_name, password, couple_id, created_at)
	          VALUES (@id, @email, @full_name, @password, '', @created_at)`
	_, err = s.db.ExecContext(ctx, query,
		sql.Named("id", user.ID), sql.Named("email", user.Email),
		sql.Named("full_name", user.FullName), sql.Named("password", string(hashed)),
		sql.Named("created_at", user.CreatedAt))
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("ExecContext(insert user): %w", err)
	}
	return user, nil
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	return s.getUser(ctx, "id", id)
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUser(ctx, "email", strings.ToLower(email))
}

func (s *SQLiteStore) getUser(ctx context.Context, col, val string) (*User, error) {
	query := fmt.Sprintf(`SELECT id, email, full_name, password, couple_id, created_at
	          FROM users WHERE %s = @val`, col)
	row := s.db.QueryRowContext(ctx, query, sql.Named("val", val))

	var user User
	err := row.Scan(&user.ID, &user.Email, &user.FullName, &user.Password,
		&user.CoupleID, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("row.Scan: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) VerifyUser(ctx context.Context, email, password string) (*User, error) {
	user, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *SQLiteStore) CreateInvite(ctx context.Context, userID string) (string, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", ErrInvalidUser
	}
	if user.CoupleID != "" {
		return "", ErrAlreadyPaired
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("BeginTx: %w", err)
	}
	defer tx.Rollback()

	coupleID := uuid.New().String()
	code, err := inviteCode()
	if err != nil {
		return "", err
	}

	query := `INSERT INTO couples (id, invite_code, created_at)
	          VALUES (@id, @invite_code, @created_at)`
	_, err = tx.ExecContext(ctx, query,
		sql.Named("id", coupleID), sql.Named("invite_code", code),
		sql.Named("created_at", time.Now().UTC()))
	if err != nil {
		return "", fmt.Errorf("ExecContext(insert couple): %w", err)
	}

	query = `UPDATE users SET couple_id = @couple_id WHERE id = @id`
	if _, err := tx.ExecContext(ctx, query,
		sql.Named("couple_id", coupleID), sql.Named("id", userID)); err != nil {
		return "", fmt.Errorf("ExecContext(update user): %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("Commit: %w", err)
	}
	return code, nil
}

func (s *SQLiteStore) JoinWithInvite(ctx context.Context, userID, code string) (string, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", ErrInvalidUser
	}
	if user.CoupleID != "" {
		return "", ErrAlreadyPaired
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("BeginTx: %w", err)
	}
	defer tx.Rollback()

	var coupleID string
	query := `SELECT id FROM couples WHERE invite_code = @code`
	err = tx.QueryRowContext(ctx, query, sql.Named("code", code)).Scan(&coupleID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidInvite
	}
	if err != nil {
		return "", fmt.Errorf("row.Scan: %w", err)
	}

	// Spend the code so a couple never grows past two members.
	query = `UPDATE couples SET invite_code = '' WHERE id = @id AND invite_code = @code`
	res, err := tx.ExecContext(ctx, query,
		sql.Named("id", coupleID), sql.Named("code", code))
	if err != nil {
		return "", fmt.Errorf("ExecContext(spend invite): %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", ErrInvalidInvite
	}

	query = `UPDATE users SET couple_id = @couple_id WHERE id = @id`
	if _, err := tx.ExecContext(ctx, query,
		sql.Named("couple_id", coupleID), sql.Named("id", userID)); err != nil {
		return "", fmt.Errorf("ExecContext(update user): %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("Commit: %w", err)
	}
	return coupleID, nil
}

func (s *SQLiteStore) GetCoupleMembers(ctx context.Context, coupleID string) ([]string, error) {
	query := `SELECT id FROM users WHERE couple_id = @couple_id ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, sql.Named("couple_id", coupleID))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		members = append(members, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}
	return members, nil
}

func (s *SQLiteStore) SaveMessage(ctx context.Context, input MessageCreateInput) (*Message, error) {
	if input.Text == "" && input.Image == "" {
		return nil, ErrInvalidMessage
	}
	if input.CoupleID == "" || input.SenderID == "" {
		return nil, ErrInvalidMessage
	}

	msg := &Message{
		ID:        uuid.New().String(),
		CoupleID:  input.CoupleID,
		SenderID:  input.SenderID,
		Text:      input.Text,
		Image:     input.Image,
		CreatedAt: time.Now().UTC(),
	}

	query := `INSERT INTO messages (id, couple_id, sender_id, text, image, created_at)
	          VALUES (@id, @couple_id, @sender_id, @text, @image, @created_at)`
	_, err := s.db.ExecContext(ctx, query,
		sql.Named("id", msg.ID), sql.Named("couple_id", msg.CoupleID),
		sql.Named("sender_id", msg.SenderID), sql.Named("text", msg.Text),
		sql.Named("image", msg.Image), sql.Named("created_at", msg.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("ExecContext(insert message): %w", err)
	}
	return msg, nil
}

func (s *SQLiteStore) GetMessages(ctx context.Context, coupleID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT id, couple_id, sender_id, text, image, created_at FROM messages
	          WHERE couple_id = @couple_id
	          ORDER BY created_at DESC, id DESC LIMIT @limit`
	rows, err := s.db.QueryContext(ctx, query,
		sql.Named("couple_id", coupleID), sql.Named("limit", limit))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.CoupleID, &m.SenderID, &m.Text, &m.Image, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}
	return messages, nil
}

// inviteCode generates a short shareable pairing code.
func inviteCode() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand.Read: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}
