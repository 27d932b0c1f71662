package postgres

import (
	"context"
	"time"

	"stocksense/internal/domain/thesis"
	"stocksense/internal/metrics"
)

// AlertRepository persists kill criteria alerts
type AlertRepository struct {
	db DBTX
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db DBTX) *AlertRepository {
	return &AlertRepository{db: db}
}

// CreateAlert inserts a new alert
func (r *AlertRepository) CreateAlert(ctx context.Context, alert *thesis.Alert) error {
	query := `
		INSERT INTO alerts (
			id, user_id, thesis_id, ticker, alert_type, message, data, is_read, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)`

	start := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		alert.ID, alert.UserID, alert.ThesisID, alert.Ticker,
		alert.AlertType, alert.Message, alert.Data, alert.IsRead, alert.CreatedAt,
	)
	metrics.RecordDBQuery("postgres", "create_alert", time.Since(start), err)

	return err
}

// ListUnread returns a user's unread alerts, newest first
func (r *AlertRepository) ListUnread(ctx context.Context, userID string) ([]thesis.Alert, error) {
	var alerts []thesis.Alert

	query := `
		SELECT id, user_id, thesis_id, ticker, alert_type, message, data, is_read, created_at
		FROM alerts
		WHERE user_id = $1 AND is_read = false
		ORDER BY created_at DESC`

	start := time.Now()
	err := r.db.SelectContext(ctx, &alerts, query, userID)
	metrics.RecordDBQuery("postgres", "list_unread_alerts", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	return alerts, nil
}

// MarkRead flags an alert as read
func (r *AlertRepository) MarkRead(ctx context.Context, alertID string) error {
	query := `UPDATE alerts SET is_read = true WHERE id = $1`

	start := time.Now()
	_, err := r.db.ExecContext(ctx, query, alertID)
	metrics.RecordDBQuery("postgres", "mark_alert_read", time.Since(start), err)

	return err
}
