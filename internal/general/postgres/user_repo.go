package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"dispatch/internal/domain/user"
	"dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

// UserRepo persists users using pgx and plain SQL.
type UserRepo struct{}

// NewUserRepo constructs a new UserRepo.
func NewUserRepo() ports.UserRepository {
	return &UserRepo{}
}

const userColumns = `
	id, created_at, updated_at, email, password_hash, role, is_active,
	phone, push_token, preferences, last_login_at`

// CreateUser inserts a new user row.
func (repo *UserRepo) CreateUser(ctx context.Context, u *user.User) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	return tx.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, role, is_active, phone, push_token, preferences)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`,
		u.Email,
		u.PasswordHash,
		u.Role.String(),
		u.IsActive,
		u.Phone,
		u.PushToken,
		u.Preferences, // pgx marshals to jsonb
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
}

// GetByID returns one user by id, or nil when absent.
func (repo *UserRepo) GetByID(ctx context.Context, id string) (*user.User, error) {
	return repo.getOne(ctx, `WHERE id = $1`, id)
}

// GetByEmail returns one user by (lowercased) email, or nil when absent.
func (repo *UserRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return repo.getOne(ctx, `WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
}

// TouchLogin records a successful authentication.
func (repo *UserRepo) TouchLogin(ctx context.Context, id string, at time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE users SET last_login_at = $2, updated_at = now() WHERE id = $1
	`, id, at.UTC())
	return err
}

// SetPushToken replaces (or clears, when nil) the user's device push token.
func (repo *UserRepo) SetPushToken(ctx context.Context, id string, token *string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE users SET push_token = $2, updated_at = now() WHERE id = $1
	`, id, token)
	return err
}

func (repo *UserRepo) getOne(ctx context.Context, where string, arg any) (*user.User, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var (
		out  user.User
		role string
	)
	err = tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users `+where, arg).Scan(
		&out.ID, &out.CreatedAt, &out.UpdatedAt, &out.Email, &out.PasswordHash, &role, &out.IsActive,
		&out.Phone, &out.PushToken, &out.Preferences, &out.LastLoginAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out.Role = user.Role(role)

	return &out, nil
}
