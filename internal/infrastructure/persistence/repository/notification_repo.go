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

// NotificationRepository implements port.NotificationRepository
type NotificationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sql.DB, logger *zap.Logger) port.NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// Insert stores a notification for one user
func (r *NotificationRepository) Insert(ctx context.Context, n *entity.Notification) error {
	query := `
		INSERT INTO notifications (
			user_id, type, title, message, entity_type, entity_id, urgent, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		n.UserID,
		n.Type,
		n.Title,
		n.Message,
		n.EntityType,
		n.EntityID,
		n.Urgent,
		n.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create notification",
			zap.String("user_id", n.UserID),
			zap.String("entity_id", n.EntityID),
			zap.Error(err))
		return fmt.Errorf("failed to create notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	n.ID = id
	return nil
}

// ListByUser returns the notifications of a user, newest first
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*entity.Notification, error) {
	query := `
		SELECT id, user_id, type, title, message, entity_type, entity_id, urgent, read_at, created_at
		FROM notifications
		WHERE user_id = ?
	`
	if unreadOnly {
		query += " AND read_at IS NULL"
	}
	query += " ORDER BY id DESC"
	args := []interface{}{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list notifications", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []*entity.Notification
	for rows.Next() {
		var n entity.Notification
		var readAt sql.NullTime
		err := rows.Scan(
			&n.ID,
			&n.UserID,
			&n.Type,
			&n.Title,
			&n.Message,
			&n.EntityType,
			&n.EntityID,
			&n.Urgent,
			&readAt,
			&n.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.ReadAt = timePtr(readAt)
		out = append(out, &n)
	}

	return out, rows.Err()
}

// MarkRead acknowledges a notification of the user. Marking twice is a no-op.
func (r *NotificationRepository) MarkRead(ctx context.Context, id int64, userID string) error {
	query := `UPDATE notifications SET read_at = COALESCE(read_at, ?) WHERE id = ? AND user_id = ?`
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query, time.Now().UTC(), id, userID)
	if err != nil {
		r.logger.Error("Failed to mark notification read", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: notification %d", workflow.ErrNotFound, id)
	}
	return nil
}

// CountUnread returns how many notifications the user has not opened
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read_at IS NULL`
	if err := getExecutor(ctx, r.db).QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		r.logger.Error("Failed to count unread notifications", zap.String("user_id", userID), zap.Error(err))
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return count, nil
}

// Verify interface compliance
var _ port.NotificationRepository = (*NotificationRepository)(nil)
