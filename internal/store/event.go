package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// EventKind distinguishes pose and action events.
type EventKind string

const (
	// EventPose records a classified window.
	EventPose EventKind = "pose"
	// EventAction records an emitted action code.
	EventAction EventKind = "action"
)

// Event is one entry of the pipeline event log.
type Event struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"kind"`
	Code      int64     `json:"code"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EventRepository stores the event log.
type EventRepository struct {
	db *sql.DB
}

// Events returns the event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Record appends an event.
func (r *EventRepository) Record(e *Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := r.db.Exec(
		`INSERT INTO events (id, kind, code, detail, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.Code, e.Detail, e.CreatedAt,
	)
	return err
}

// Recent returns up to limit events, newest first. An empty kind matches all kinds.
func (r *EventRepository) Recent(kind EventKind, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, kind, code, detail, created_at FROM events`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var kind string
		if err := rows.Scan(&e.ID, &kind, &e.Code, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = EventKind(kind)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune deletes all but the newest keep events.
func (r *EventRepository) Prune(keep int) (int64, error) {
	result, err := r.db.Exec(
		`DELETE FROM events WHERE id NOT IN (SELECT id FROM events ORDER BY created_at DESC, rowid DESC LIMIT ?)`,
		keep,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
