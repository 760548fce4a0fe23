package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"salonbook/internal/models"
)

// EnqueueNotification appends a pending record to the outbox.
func (db *DB) EnqueueNotification(ctx context.Context, n *models.Notification) error {
	if n.UID == "" {
		n.UID = uuid.NewString()
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO notifications (
			uid, waitlist_id, client_name, client_phone, message, status
		) VALUES (?, ?, ?, ?, ?, ?)`,
		n.UID, n.WaitlistID, n.ClientName, n.ClientPhone, n.Message,
		models.NotificationPending,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("enqueue notification: %w", err)
	}
	n.ID, _ = res.LastInsertId()
	n.Status = models.NotificationPending
	return nil
}

// PendingNotifications returns up to limit pending records, oldest first.
func (db *DB) PendingNotifications(ctx context.Context, limit int) ([]models.Notification, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, uid, waitlist_id, client_name, client_phone, message,
		       status, retry_count, COALESCE(last_error, ''), created_at, sent_at
		FROM notifications
		WHERE status = ? ORDER BY created_at LIMIT ?`,
		models.NotificationPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("pending notifications: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		var sentAt sql.NullTime
		if err := rows.Scan(
			&n.ID, &n.UID, &n.WaitlistID, &n.ClientName, &n.ClientPhone,
			&n.Message, &n.Status, &n.RetryCount, &n.LastError, &n.CreatedAt, &sentAt,
		); err != nil {
			return nil, err
		}
		if sentAt.Valid {
			n.SentAt = &sentAt.Time
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationSent records a successful delivery.
func (db *DB) MarkNotificationSent(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx,
		"UPDATE notifications SET status = ?, sent_at = ? WHERE id = ?",
		models.NotificationSent, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkNotificationFailed bumps the retry count; terminal failures leave the
// pending queue for good.
func (db *DB) MarkNotificationFailed(ctx context.Context, id int64, sendErr string, terminal bool) error {
	status := models.NotificationPending
	if terminal {
		status = models.NotificationFailed
	}
	res, err := db.ExecContext(ctx, `
		UPDATE notifications
		SET status = ?, retry_count = retry_count + 1, last_error = ?
		WHERE id = ?`,
		status, sendErr, id,
	)
	if err != nil {
		return fmt.Errorf("mark notification failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountPendingNotifications reports the outbox depth for metrics.
func (db *DB) CountPendingNotifications(ctx context.Context) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notifications WHERE status = ?",
		models.NotificationPending,
	).Scan(&count)
	return count, err
}
