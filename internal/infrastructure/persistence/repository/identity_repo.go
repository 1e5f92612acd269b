package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/sygfp/internal/application/port"
	"github.com/garyjia/sygfp/internal/domain/entity"
	"github.com/garyjia/sygfp/internal/domain/workflow"
)

const userColumns = `id, email, full_name, direction, lark_open_id, active, created_at`

// UserRepository implements port.IdentityProvider on the users and user_roles tables
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a user with its roles
func (r *UserRepository) Create(ctx context.Context, u *entity.User, roles ...workflow.Role) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	exec := getExecutor(ctx, r.db)

	query := `INSERT INTO users (` + userColumns + `) VALUES (` + placeholders(7) + `)`
	if _, err := exec.ExecContext(ctx, query,
		u.ID, u.Email, u.FullName, u.Direction, u.LarkOpenID, u.Active, u.CreatedAt.UTC(),
	); err != nil {
		r.logger.Error("Failed to create user", zap.String("id", u.ID), zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	for _, role := range roles {
		if err := r.grant(ctx, exec, u.ID, role); err != nil {
			return err
		}
	}
	return nil
}

// GrantRole adds a role to a user. Granting twice is a no-op.
func (r *UserRepository) GrantRole(ctx context.Context, userID string, role workflow.Role) error {
	return r.grant(ctx, getExecutor(ctx, r.db), userID, role)
}

func (r *UserRepository) grant(ctx context.Context, exec executor, userID string, role workflow.Role) error {
	if _, err := exec.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_roles (user_id, role) VALUES (?, ?)`, userID, role,
	); err != nil {
		r.logger.Error("Failed to grant role", zap.String("user_id", userID), zap.String("role", role.String()), zap.Error(err))
		return fmt.Errorf("failed to grant role: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID
func (r *UserRepository) GetUser(ctx context.Context, userID string) (*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	u, err := scanUser(getExecutor(ctx, r.db).QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get user", zap.String("id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetUserRoles returns the roles held by an active user
func (r *UserRepository) GetUserRoles(ctx context.Context, userID string) ([]workflow.Role, error) {
	query := `
		SELECT ur.role
		FROM user_roles ur
		JOIN users u ON u.id = ur.user_id
		WHERE ur.user_id = ? AND u.active = 1
		ORDER BY ur.role
	`
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to get user roles", zap.String("id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to get user roles: %w", err)
	}
	defer rows.Close()

	var roles []workflow.Role
	for rows.Next() {
		var role workflow.Role
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// ListUsersByRoles returns the active users holding at least one of the roles
func (r *UserRepository) ListUsersByRoles(ctx context.Context, roles []workflow.Role) ([]*entity.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}

	args := make([]interface{}, 0, len(roles))
	for _, role := range roles {
		args = append(args, role)
	}
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE active = 1 AND id IN (
			SELECT user_id FROM user_roles WHERE role IN (` + placeholders(len(roles)) + `)
		)
		ORDER BY id
	`
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list users by roles", zap.Error(err))
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(s rowScanner) (*entity.User, error) {
	var u entity.User
	if err := s.Scan(&u.ID, &u.Email, &u.FullName, &u.Direction, &u.LarkOpenID, &u.Active, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// Verify interface compliance
var _ port.IdentityProvider = (*UserRepository)(nil)
