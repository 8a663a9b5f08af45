// Package registry is the authoritative store of registered handles and their
// verification state. Reads by state are FIFO queues ordered by last_updated.
package registry

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

const selectColumns = `id, email, handle, state, data, created, last_updated`

// PostgresRegistry implements the handle registry on the handles table.
type PostgresRegistry struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPostgresRegistry(db *sql.DB, log logger.Logger) *PostgresRegistry {
	return &PostgresRegistry{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "registry"}),
	}
}

// Create inserts a new UNKNOWN record.
func (r *PostgresRegistry) Create(ctx context.Context, email, handle string) (*models.HandleRecord, error) {
	query := `
		INSERT INTO handles (id, email, handle, state, data, created, last_updated)
		VALUES ($1, $2, $3, $4, NULL, now(), now())
		RETURNING ` + selectColumns

	row := r.db.QueryRowContext(ctx, query, uuid.NewString(), email, handle, models.HandleStateUnknown)
	record, err := scanRecord(row)
	if err != nil {
		return nil, apperrors.NewStoreWriteFailedError("create", err)
	}

	metrics.HandleTransitions.WithLabelValues(string(models.HandleStateUnknown)).Inc()
	r.logger.Info("Handle registered", map[string]interface{}{"id": record.ID, "handle": handle})
	return record, nil
}

// ResetToUnknown re-registers an existing record under a new handle, clearing its data.
func (r *PostgresRegistry) ResetToUnknown(ctx context.Context, id, handle string) error {
	query := `
		UPDATE handles
		SET handle = $2, state = $3, data = NULL, last_updated = now()
		WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, handle, models.HandleStateUnknown)
	if err != nil {
		return apperrors.NewStoreWriteFailedError("reset", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewStoreWriteFailedError("reset", fmt.Errorf("handle record %s not found", id))
	}

	metrics.HandleTransitions.WithLabelValues(string(models.HandleStateUnknown)).Inc()
	r.logger.Info("Handle re-registered", map[string]interface{}{"id": id, "handle": handle})
	return nil
}

// GetByEmail returns the first record for email, or nil when none exists.
func (r *PostgresRegistry) GetByEmail(ctx context.Context, email string) (*models.HandleRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM handles WHERE email = $1 ORDER BY created ASC LIMIT 1`

	record, err := scanRecord(r.db.QueryRowContext(ctx, query, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewStoreQueryFailedError("fetch-by-email", err)
	}
	return record, nil
}

// GetByHandle returns every record registered under handle.
func (r *PostgresRegistry) GetByHandle(ctx context.Context, handle string) ([]models.HandleRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM handles WHERE handle = $1 ORDER BY last_updated ASC, id ASC`
	return r.queryRecords(ctx, "fetch-by-handle", query, handle)
}

// GetByState returns up to limit records in state, oldest last_updated first.
// A non-positive limit returns the whole queue.
func (r *PostgresRegistry) GetByState(ctx context.Context, state models.HandleState, limit int) ([]models.HandleRecord, error) {
	if limit <= 0 {
		query := `SELECT ` + selectColumns + ` FROM handles WHERE state = $1 ORDER BY last_updated ASC, id ASC`
		return r.queryRecords(ctx, "fetch-by-state", query, state)
	}
	query := `SELECT ` + selectColumns + ` FROM handles WHERE state = $1 ORDER BY last_updated ASC, id ASC LIMIT $2`
	return r.queryRecords(ctx, "fetch-by-state", query, state, limit)
}

// MarkInvalid moves every record to INVALID as one set. Records whose state
// changed since they were read are left alone.
func (r *PostgresRegistry) MarkInvalid(ctx context.Context, records []models.HandleRecord) error {
	return r.transition(ctx, "mark-invalid", records, models.HandleStateInvalid)
}

// MarkValid moves every record to VALID as one set.
func (r *PostgresRegistry) MarkValid(ctx context.Context, records []models.HandleRecord) error {
	return r.transition(ctx, "mark-valid", records, models.HandleStateValid)
}

func (r *PostgresRegistry) transition(ctx context.Context, operation string, records []models.HandleRecord, to models.HandleState) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]string, 0, len(records))
	var from []string
	seen := make(map[models.HandleState]bool)
	for _, rec := range records {
		if _, err := models.Transition(rec.State, to); err != nil {
			return apperrors.NewIllegalTransitionError(err)
		}
		ids = append(ids, rec.ID)
		if !seen[rec.State] {
			seen[rec.State] = true
			from = append(from, string(rec.State))
		}
	}

	var moved int64
	err := database.WithTx(ctx, r.db, nil, func(ctx context.Context, tx database.DBTX) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE handles SET state = $1, last_updated = now() WHERE id = ANY($2) AND state = ANY($3)`,
			to, pq.Array(ids), pq.Array(from))
		if err != nil {
			return err
		}
		moved, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return apperrors.NewStoreWriteFailedError(operation, err)
	}

	metrics.HandleTransitions.WithLabelValues(string(to)).Add(float64(moved))
	r.logSkipped(operation, len(ids), moved)
	r.logger.Debug("Handles transitioned", map[string]interface{}{
		"state": string(to),
		"count": moved,
	})
	return nil
}

// UpdateData persists each record's snapshot and bumps last_updated, moving
// every record to the back of its queue. The batch commits as one set. Only
// records still VALID are written; a re-registered record is skipped.
func (r *PostgresRegistry) UpdateData(ctx context.Context, records []models.HandleRecord) error {
	if len(records) == 0 {
		return nil
	}

	var updated int64
	err := database.WithTx(ctx, r.db, nil, func(ctx context.Context, tx database.DBTX) error {
		for _, rec := range records {
			payload, err := encodeSnapshot(rec.Data)
			if err != nil {
				return err
			}
			res, err := tx.ExecContext(ctx,
				`UPDATE handles SET data = $1, last_updated = now() WHERE id = $2 AND state = $3`,
				payload, rec.ID, models.HandleStateValid)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			updated += n
		}
		return nil
	})
	if err != nil {
		return apperrors.NewStoreWriteFailedError("update-data", err)
	}
	r.logSkipped("update-data", len(records), updated)
	return nil
}

// Delete removes every record that is still INVALID as one set.
func (r *PostgresRegistry) Delete(ctx context.Context, records []models.HandleRecord) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}

	var deleted int64
	err := database.WithTx(ctx, r.db, nil, func(ctx context.Context, tx database.DBTX) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM handles WHERE id = ANY($1) AND state = $2`,
			pq.Array(ids), models.HandleStateInvalid)
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return apperrors.NewStoreWriteFailedError("delete", err)
	}

	r.logSkipped("delete", len(ids), deleted)
	r.logger.Info("Handles deleted", map[string]interface{}{"count": deleted})
	return nil
}

// logSkipped notes records that moved between read and write, usually
// because their owner re-registered.
func (r *PostgresRegistry) logSkipped(operation string, requested int, affected int64) {
	if skipped := int64(requested) - affected; skipped > 0 {
		r.logger.Warn("Skipped records whose state changed", map[string]interface{}{
			"operation": operation,
			"skipped":   skipped,
		})
	}
}

// CountValid returns the number of VALID records.
func (r *PostgresRegistry) CountValid(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM handles WHERE state = $1`, models.HandleStateValid).Scan(&n)
	if err != nil {
		return 0, apperrors.NewStoreQueryFailedError("count-valid", err)
	}
	return n, nil
}

func (r *PostgresRegistry) queryRecords(ctx context.Context, operation, query string, args ...interface{}) ([]models.HandleRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStoreQueryFailedError(operation, err)
	}
	defer rows.Close()

	var records []models.HandleRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, apperrors.NewStoreQueryFailedError(operation, err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreQueryFailedError(operation, err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*models.HandleRecord, error) {
	var (
		record models.HandleRecord
		state  string
		data   []byte
	)
	if err := s.Scan(&record.ID, &record.Email, &record.Handle, &state, &data, &record.Created, &record.LastUpdated); err != nil {
		return nil, err
	}
	record.State = models.HandleState(state)

	if len(data) > 0 && string(data) != "null" {
		var snapshot models.RatingSnapshot
		if err := json.Unmarshal(data, &snapshot); err != nil {
			return nil, fmt.Errorf("decode data for %s: %w", record.ID, err)
		}
		record.Data = &snapshot
	}
	return &record, nil
}

func encodeSnapshot(snapshot *models.RatingSnapshot) (interface{}, error) {
	if snapshot == nil {
		return nil, nil
	}
	b, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot for %s: %w", snapshot.Handle, err)
	}
	return b, nil
}
