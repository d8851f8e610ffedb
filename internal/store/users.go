package store

import (
	"context"
	"fmt"

	"invoice-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const userSelect = `
	SELECT u.id, u.username, u.password_hash, u.role_id, r.name AS role_name, u.created_at, u.updated_at
	FROM users u JOIN roles r ON r.id = u.role_id`

// GetUserByID retrieves a user by ID
func (q queries) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := sqlx.GetContext(ctx, q.ext, &user, userSelect+" WHERE u.id = $1", id); err != nil {
		return nil, translateError(err)
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by its unique username
func (q queries) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := sqlx.GetContext(ctx, q.ext, &user, userSelect+" WHERE u.username = $1", username); err != nil {
		return nil, translateError(err)
	}
	return &user, nil
}

// ListUsers retrieves all users
func (q queries) ListUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	err := sqlx.SelectContext(ctx, q.ext, &users, userSelect+" ORDER BY u.id")
	return users, translateError(err)
}

// CreateUser inserts a user; the role must exist
func (q queries) CreateUser(ctx context.Context, user *models.User) error {
	err := sqlx.GetContext(ctx, q.ext, user, `
		INSERT INTO users (username, password_hash, role_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`,
		user.Username, user.PasswordHash, user.RoleID)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", translateError(err))
	}
	return nil
}

// GetRoleByID retrieves a role by ID
func (q queries) GetRoleByID(ctx context.Context, id int64) (*models.Role, error) {
	var role models.Role
	err := sqlx.GetContext(ctx, q.ext, &role,
		"SELECT id, name, created_at, updated_at FROM roles WHERE id = $1", id)
	if err != nil {
		return nil, translateError(err)
	}
	return &role, nil
}

// ListRoles retrieves all roles
func (q queries) ListRoles(ctx context.Context) ([]models.Role, error) {
	roles := []models.Role{}
	err := sqlx.SelectContext(ctx, q.ext, &roles,
		"SELECT id, name, created_at, updated_at FROM roles ORDER BY id")
	return roles, translateError(err)
}

// CreateRole inserts a role with a unique name
func (q queries) CreateRole(ctx context.Context, role *models.Role) error {
	err := sqlx.GetContext(ctx, q.ext, role,
		"INSERT INTO roles (name) VALUES ($1) RETURNING id, created_at, updated_at", role.Name)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", translateError(err))
	}
	return nil
}
