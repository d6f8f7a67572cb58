package dump

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lifeinbox/intake/pkg/logging"
)

// Store persists dumps and suggestions in postgres.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// NewStore creates a store backed by the given connection.
func NewStore(db *sql.DB, logger logging.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Insert writes a fully-enriched dump as a single row. The caller gets
// either a committed row or an error; no partial record is left behind.
func (s *Store) Insert(ctx context.Context, d *Dump) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	entities, err := json.Marshal(d.Entities)
	if err != nil {
		return fmt.Errorf("failed to marshal entities: %w", err)
	}

	query := `
		INSERT INTO dumps (id, owner_id, raw_content, kind, status, ai_summary, ai_confidence, category, entities, urgency_level, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = s.db.ExecContext(ctx, query,
		d.ID, d.OwnerID, d.RawContent, string(d.Kind), string(d.Status),
		d.AISummary, d.AIConfidence, d.Category, entities, d.UrgencyLevel,
		d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert dump: %w", err)
	}

	return nil
}

// GetByID fetches a single dump.
func (s *Store) GetByID(ctx context.Context, id string) (*Dump, error) {
	query := `
		SELECT id, owner_id, raw_content, kind, status, ai_summary, ai_confidence, category, entities, urgency_level, created_at, updated_at
		FROM dumps
		WHERE id = $1
	`

	row := s.db.QueryRowContext(ctx, query, id)
	return scanDump(row)
}

// ListByOwner returns an owner's dumps, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*Dump, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, owner_id, raw_content, kind, status, ai_summary, ai_confidence, category, entities, urgency_level, created_at, updated_at
		FROM dumps
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list dumps: %w", err)
	}
	defer rows.Close()

	var dumps []*Dump
	for rows.Next() {
		d, err := scanDump(rows)
		if err != nil {
			return nil, err
		}
		dumps = append(dumps, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dumps: %w", err)
	}

	return dumps, nil
}

// UpdateCategory applies a human review correction to a dump's category.
func (s *Store) UpdateCategory(ctx context.Context, id, category string) error {
	query := `
		UPDATE dumps
		SET category = $2, updated_at = $3
		WHERE id = $1
	`

	res, err := s.db.ExecContext(ctx, query, id, category, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// InsertSuggestion writes a hook-produced suggestion.
func (s *Store) InsertSuggestion(ctx context.Context, sg *Suggestion) error {
	if sg.ID == "" {
		sg.ID = uuid.New().String()
	}
	if sg.CreatedAt.IsZero() {
		sg.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO suggestions (id, dump_id, owner_id, type, payload, remind_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		sg.ID, sg.DumpID, sg.OwnerID, sg.Type, sg.Payload, sg.RemindAt, sg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert suggestion: %w", err)
	}
	return nil
}

// ListSuggestionsByDump returns the suggestions recorded for one dump.
func (s *Store) ListSuggestionsByDump(ctx context.Context, dumpID string) ([]*Suggestion, error) {
	query := `
		SELECT id, dump_id, owner_id, type, payload, remind_at, created_at
		FROM suggestions
		WHERE dump_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, dumpID)
	if err != nil {
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	defer rows.Close()

	var suggestions []*Suggestion
	for rows.Next() {
		var sg Suggestion
		if err := rows.Scan(&sg.ID, &sg.DumpID, &sg.OwnerID, &sg.Type, &sg.Payload, &sg.RemindAt, &sg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		suggestions = append(suggestions, &sg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate suggestions: %w", err)
	}

	return suggestions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDump(row rowScanner) (*Dump, error) {
	var (
		d        Dump
		kind     string
		status   string
		entities []byte
	)

	err := row.Scan(
		&d.ID, &d.OwnerID, &d.RawContent, &kind, &status,
		&d.AISummary, &d.AIConfidence, &d.Category, &entities, &d.UrgencyLevel,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Kind = Kind(kind)
	d.Status = Status(status)
	if len(entities) > 0 {
		if err := json.Unmarshal(entities, &d.Entities); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entities: %w", err)
		}
	}

	return &d, nil
}
