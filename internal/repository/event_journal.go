package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/GoPolymarket/intentgate/internal/model"
)

// EventJournal appends every published event to the events table.
type EventJournal struct {
	db *sqlx.DB
}

func NewEventJournal(ctx context.Context, db *sqlx.DB) (*EventJournal, error) {
	j := &EventJournal{db: db}
	if err := j.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("event journal schema: %w", err)
	}
	return j, nil
}

func (j *EventJournal) Name() string {
	return "journal"
}

func (j *EventJournal) Write(ctx context.Context, evt *model.Event) error {
	if evt == nil {
		return nil
	}
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return err
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO events (id, name, payload, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, evt.ID, evt.Name, payload, evt.CreatedAt)
	return err
}

type eventRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Payload   []byte    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}

// List returns events newest first; name, from and to are optional filters.
func (j *EventJournal) List(ctx context.Context, name string, limit int, from, to *time.Time) ([]*model.Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `SELECT id, name, payload, created_at FROM events`
	clauses := []string{}
	args := []interface{}{}
	idx := 1

	if name != "" {
		clauses = append(clauses, fmt.Sprintf("name = $%d", idx))
		args = append(args, name)
		idx++
	}
	if from != nil {
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", idx))
		args = append(args, *from)
		idx++
	}
	if to != nil {
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", idx))
		args = append(args, *to)
		idx++
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", idx)
	args = append(args, limit)

	var rows []eventRow
	if err := j.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]*model.Event, 0, len(rows))
	for _, row := range rows {
		out = append(out, &model.Event{
			ID:        row.ID,
			Name:      row.Name,
			Payload:   json.RawMessage(row.Payload),
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return out, nil
}

func (j *EventJournal) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	_, err := j.db.ExecContext(ctx, `DELETE FROM events WHERE created_at < $1`, cutoff)
	return err
}

func (j *EventJournal) ensureSchema(ctx context.Context) error {
	_, err := j.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			payload JSONB,
			created_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return err
	}
	_, err = j.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_events_name ON events(name, created_at DESC)`)
	return err
}
