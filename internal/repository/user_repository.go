package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkuznetsov/link-registry/internal/models"
	"github.com/jackc/pgx/v5"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// UserRepository справочник пользователей: username -> роль.
// Им пользуются RPC-фронтенд (разрешение username в Identity) и linkctl.
type UserRepository interface {
	Register(ctx context.Context, user *models.User) error
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateRole(ctx context.Context, username, role string) error
}

type userRepository struct {
	db *PostgresDB
}

func NewUserRepository(db *PostgresDB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Register(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (username, role)
		VALUES ($1, $2)
		RETURNING created_at
	`

	err := r.db.Pool.QueryRow(ctx, query, user.Username, user.Role).Scan(&user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUserExists
		}
		return fmt.Errorf("failed to register user: %w", err)
	}

	return nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT username, role, created_at FROM users WHERE username = $1`

	user := &models.User{}
	err := r.db.Pool.QueryRow(ctx, query, username).Scan(&user.Username, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

func (r *userRepository) UpdateRole(ctx context.Context, username, role string) error {
	query := `UPDATE users SET role = $2 WHERE username = $1`

	result, err := r.db.Pool.Exec(ctx, query, username, role)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}
