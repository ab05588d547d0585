package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/snappy-loop/wishes/internal/models"
)

// HistoryRepository records workflow outcomes in wish_events
type HistoryRepository struct {
	db *DB
}

// NewHistoryRepository creates a new HistoryRepository
func NewHistoryRepository(db *DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// PublishEvent inserts the event. Re-inserting the same event id is a no-op.
func (r *HistoryRepository) PublishEvent(ctx context.Context, event *models.WishEvent) error {
	query := `
		INSERT INTO wish_events (id, kind, session_id, image_id, image_path, phone, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.Kind, event.SessionID, nullUUID(event.ImageID),
		nullString(event.ImagePath), nullString(event.Phone), event.Error, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert wish event: %w", err)
	}
	return nil
}

// ListRecent returns the newest events first.
func (r *HistoryRepository) ListRecent(ctx context.Context, limit int) ([]*models.WishEvent, error) {
	query := `
		SELECT id, kind, session_id, image_id, image_path, phone, error_message, created_at
		FROM wish_events
		ORDER BY created_at DESC, id
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query wish events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.WishEvent, 0, limit)
	for rows.Next() {
		var (
			ev        models.WishEvent
			imageID   uuid.NullUUID
			imagePath sql.NullString
			phone     sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.SessionID, &imageID, &imagePath, &phone, &ev.Error, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan wish event: %w", err)
		}
		if imageID.Valid {
			id := imageID.UUID
			ev.ImageID = &id
		}
		ev.ImagePath = imagePath.String
		ev.Phone = phone.String
		events = append(events, &ev)
	}

	return events, rows.Err()
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
