// Package outbox is the durable queue of notifications awaiting delivery.
// Records are UNSENT on enqueue and move to SENT exactly once.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"rating-notifier/internal/common/database"
	apperrors "rating-notifier/internal/common/errors"
	"rating-notifier/internal/common/logger"
	"rating-notifier/internal/common/metrics"
	"rating-notifier/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const selectColumns = `id, email, type, state, data, created, last_updated`

// PostgresOutbox implements the notification outbox on the notifications table.
type PostgresOutbox struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPostgresOutbox(db *sql.DB, log logger.Logger) *PostgresOutbox {
	return &PostgresOutbox{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "outbox"}),
	}
}

// Enqueue writes every notification as UNSENT in one transaction.
func (o *PostgresOutbox) Enqueue(ctx context.Context, notifications []models.NewNotification) error {
	if len(notifications) == 0 {
		return nil
	}

	err := database.WithTx(ctx, o.db, nil, func(ctx context.Context, tx database.DBTX) error {
		for _, n := range notifications {
			payload, err := json.Marshal(n.Data)
			if err != nil {
				return fmt.Errorf("encode payload for %s: %w", n.Data.Handle, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO notifications (id, email, type, state, data, created, last_updated)
				VALUES ($1, $2, $3, $4, $5, now(), now())`,
				uuid.NewString(), n.Email, n.Type, models.NotificationStateUnsent, payload); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.NewStoreWriteFailedError("enqueue", err)
	}

	for _, n := range notifications {
		metrics.NotificationsEnqueued.WithLabelValues(string(n.Type)).Inc()
	}
	o.logger.Info("Notifications enqueued", map[string]interface{}{
		"type":  string(notifications[0].Type),
		"count": len(notifications),
	})
	return nil
}

// GetByStateAndType returns up to limit notifications, oldest last_updated first.
// A non-positive limit returns the whole queue.
func (o *PostgresOutbox) GetByStateAndType(ctx context.Context, state models.NotificationState, typ models.NotificationType, limit int) ([]models.Notification, error) {
	query := `SELECT ` + selectColumns + ` FROM notifications WHERE state = $1 AND type = $2 ORDER BY last_updated ASC, id ASC`
	if limit <= 0 {
		return o.queryNotifications(ctx, "fetch-by-state-and-type", query, state, typ)
	}
	return o.queryNotifications(ctx, "fetch-by-state-and-type", query+` LIMIT $3`, state, typ, limit)
}

// GetByHandle returns every notification whose payload names handle.
func (o *PostgresOutbox) GetByHandle(ctx context.Context, handle string) ([]models.Notification, error) {
	query := `SELECT ` + selectColumns + ` FROM notifications WHERE data->>'handle' = $1 ORDER BY last_updated ASC, id ASC`
	return o.queryNotifications(ctx, "fetch-by-handle", query, handle)
}

// MarkSent moves every notification to SENT as one set. Records already SENT are left untouched.
func (o *PostgresOutbox) MarkSent(ctx context.Context, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	ids := make([]string, 0, len(notifications))
	for _, n := range notifications {
		ids = append(ids, n.ID)
	}

	var affected int64
	err := database.WithTx(ctx, o.db, nil, func(ctx context.Context, tx database.DBTX) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE notifications SET state = $1, last_updated = now() WHERE id = ANY($2) AND state = $3`,
			models.NotificationStateSent, pq.Array(ids), models.NotificationStateUnsent)
		if err != nil {
			return err
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return apperrors.NewStoreWriteFailedError("mark-sent", err)
	}

	metrics.NotificationsSent.WithLabelValues(string(notifications[0].Type)).Add(float64(affected))
	o.logger.Debug("Notifications marked sent", map[string]interface{}{
		"type":  string(notifications[0].Type),
		"count": affected,
	})
	return nil
}

// CountSent returns the number of SENT notifications of typ.
func (o *PostgresOutbox) CountSent(ctx context.Context, typ models.NotificationType) (int, error) {
	var n int
	err := o.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE state = $1 AND type = $2`,
		models.NotificationStateSent, typ).Scan(&n)
	if err != nil {
		return 0, apperrors.NewStoreQueryFailedError("count-sent", err)
	}
	return n, nil
}

func (o *PostgresOutbox) queryNotifications(ctx context.Context, operation, query string, args ...interface{}) ([]models.Notification, error) {
	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStoreQueryFailedError(operation, err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var (
			n          models.Notification
			typ, state string
			data       []byte
		)
		if err := rows.Scan(&n.ID, &n.Email, &typ, &state, &data, &n.Created, &n.LastUpdated); err != nil {
			return nil, apperrors.NewStoreQueryFailedError(operation, err)
		}
		n.Type = models.NotificationType(typ)
		n.State = models.NotificationState(state)
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return nil, apperrors.NewStoreQueryFailedError(operation, fmt.Errorf("decode payload for %s: %w", n.ID, err))
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreQueryFailedError(operation, err)
	}
	return out, nil
}
