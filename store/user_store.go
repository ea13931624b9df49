package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"postviews/api/database"
	"postviews/api/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// UserStore persists dashboard accounts.
type UserStore struct {
	db      *sql.DB
	dialect database.Dialect
}

func NewUserStore(c *database.DBClient) *UserStore {
	return &UserStore{db: c.DB, dialect: c.Dialect}
}

// CreateUser inserts a new user and returns it as stored.
func (s *UserStore) CreateUser(ctx context.Context, email string, hashedPassword []byte) (*models.User, error) {
	query := s.dialect.Rebind(`
		INSERT INTO users (email, hashed_password)
		VALUES (?, ?)
	`)
	if _, err := s.db.ExecContext(ctx, query, email, hashedPassword); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrUserExists, email)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return s.GetUserByEmail(ctx, email)
}

func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	query := s.dialect.Rebind(`
		SELECT id, email, hashed_password, created_at, updated_at
		FROM users
		WHERE email = ?
	`)
	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&user.ID,
		&user.Email,
		&user.HashedPassword,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, email)
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return user, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
