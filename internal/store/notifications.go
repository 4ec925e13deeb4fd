// internal/store/notifications.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"pcots-notifications/internal/models"
)

// NotificationStore persists in-app notification records. The table is an
// append-only log; rows are never deleted.
type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// Create inserts one notification row.
func (s *NotificationStore) Create(ctx context.Context, n *models.Notification) error {
	query := `INSERT INTO notifications
		(id, title, message, recipient_id, sender_id, read, created_at, permit_id, inspection_id, report_id, payment_id)
		VALUES ($1, $2, $3, $4, $5, false, $6, $7, $8, $9, $10)`

	_, err := s.db.ExecContext(ctx, query,
		n.ID, n.Title, n.Message, n.RecipientID, n.SenderID, n.CreatedAt,
		nullable(n.PermitID), nullable(n.InspectionID), nullable(n.ReportID), nullable(n.PaymentID),
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// MarkRead flags a single notification as read by its recipient.
func (s *NotificationStore) MarkRead(ctx context.Context, id, recipientID string) error {
	query := `UPDATE notifications SET read = true, read_at = $1 WHERE id = $2 AND recipient_id = $3 AND read = false`
	_, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id, recipientID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// MarkAllRead flags every unread notification of a recipient as read.
func (s *NotificationStore) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	query := `UPDATE notifications SET read = true, read_at = $1 WHERE recipient_id = $2 AND read = false`
	res, err := s.db.ExecContext(ctx, query, time.Now().UTC(), recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return res.RowsAffected()
}

// ListForUser returns the most recent notifications for a recipient.
func (s *NotificationStore) ListForUser(ctx context.Context, recipientID string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, title, message, recipient_id, sender_id, read, read_at, created_at
		FROM notifications WHERE recipient_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	return scanNotifications(rows)
}

// UnreadCount returns the number of unread notifications for a recipient.
func (s *NotificationStore) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND read = false`
	if err := s.db.QueryRowContext(ctx, query, recipientID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// RecentForPermit reports whether any notification referencing the permit
// with this title was created after the cutoff. The expiry sweep uses it to
// suppress re-notification inside its window.
func (s *NotificationStore) RecentForPermit(ctx context.Context, permitID, title string, since time.Time) (bool, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE permit_id = $1 AND title = $2 AND created_at > $3`
	return s.recentExists(ctx, query, permitID, title, since)
}

// RecentForInspection is the inspection-scoped variant of RecentForPermit.
func (s *NotificationStore) RecentForInspection(ctx context.Context, inspectionID, title string, since time.Time) (bool, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE inspection_id = $1 AND title = $2 AND created_at > $3`
	return s.recentExists(ctx, query, inspectionID, title, since)
}

// RecentForReport is the report-scoped variant of RecentForPermit.
func (s *NotificationStore) RecentForReport(ctx context.Context, reportID, title string, since time.Time) (bool, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE report_id = $1 AND title = $2 AND created_at > $3`
	return s.recentExists(ctx, query, reportID, title, since)
}

func (s *NotificationStore) recentExists(ctx context.Context, query, entityID, title string, since time.Time) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, query, entityID, title, since).Scan(&count); err != nil {
		return false, fmt.Errorf("check recent notification: %w", err)
	}
	return count > 0, nil
}

// EscalationCandidate is an unread notification joined with its recipient's
// role, the grouping key of the escalation policy.
type EscalationCandidate struct {
	Notification  models.Notification
	RecipientRole string
}

// Unread returns unread notifications joined with the recipient role,
// oldest first. Age and keyword filtering happen in the caller.
func (s *NotificationStore) Unread(ctx context.Context) ([]EscalationCandidate, error) {
	query := `SELECT n.id, n.title, n.message, n.recipient_id, n.sender_id, n.read, n.read_at, n.created_at, u.role
		FROM notifications n JOIN users u ON u.id = n.recipient_id
		WHERE n.read = false ORDER BY n.created_at ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query unread notifications: %w", err)
	}
	defer rows.Close()

	var out []EscalationCandidate
	for rows.Next() {
		var c EscalationCandidate
		var readAt sql.NullTime
		if err := rows.Scan(
			&c.Notification.ID, &c.Notification.Title, &c.Notification.Message,
			&c.Notification.RecipientID, &c.Notification.SenderID,
			&c.Notification.Read, &readAt, &c.Notification.CreatedAt,
			&c.RecipientRole,
		); err != nil {
			return nil, fmt.Errorf("scan unread notification: %w", err)
		}
		if readAt.Valid {
			t := readAt.Time
			c.Notification.ReadAt = &t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ClaimSweepSlot performs the conditional write that makes check-then-notify
// atomic. Exactly one concurrent sweep run wins the claim for a given
// (entity, template, window bucket); the rest see false and skip.
func (s *NotificationStore) ClaimSweepSlot(ctx context.Context, entityID, templateKey, windowBucket string) (bool, error) {
	query := `INSERT INTO sweep_claims (entity_id, template_key, window_bucket, claimed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (entity_id, template_key, window_bucket) DO NOTHING`

	res, err := s.db.ExecContext(ctx, query, entityID, templateKey, windowBucket, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("claim sweep slot: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim sweep slot result: %w", err)
	}
	return affected == 1, nil
}

// WindowBucket renders a time bucket string used in sweep claim keys, e.g.
// a 7-day window starting from the given day.
func WindowBucket(t time.Time, windowDays int) string {
	if windowDays <= 0 {
		windowDays = 1
	}
	day := t.UTC().Truncate(24 * time.Hour)
	bucket := day.AddDate(0, 0, -(int(day.Unix()/86400) % windowDays))
	return fmt.Sprintf("%s/%dd", bucket.Format("2006-01-02"), windowDays)
}

func scanNotifications(rows *sql.Rows) ([]models.Notification, error) {
	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		var readAt sql.NullTime
		if err := rows.Scan(&n.ID, &n.Title, &n.Message, &n.RecipientID, &n.SenderID, &n.Read, &readAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if readAt.Valid {
			t := readAt.Time
			n.ReadAt = &t
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func nullable(s string) interface{} {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
