package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/agentdir/agentdir/internal/registry/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the Postgres SQLSTATE for duplicate-key errors.
const uniqueViolation = "23505"

// PostgresStore is a Store backed by the agents table (see migrations/).
// Every operation is a single statement, so atomicity per record comes
// from row-level guarantees of the database.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore on the given pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create implements Store. The primary-key constraint on id makes the
// check-and-insert atomic; a duplicate registration surfaces as ErrConflict.
func (s *PostgresStore) Create(ctx context.Context, rec *model.AgentRecord, state model.LivenessState) error {
	card, err := json.Marshal(rec.Card)
	if err != nil {
		return fmt.Errorf("marshal card: %w", err)
	}

	query := `
		INSERT INTO agents (
			id, card, credential_hash, created_at,
			status, load, message, last_seen_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = s.db.Exec(ctx, query,
		rec.ID, card, rec.CredentialHash, rec.CreatedAt,
		state.Status, state.Load, state.Message, state.LastSeenAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrConflict
		}
		return err
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id string) (*model.AgentRecord, model.LivenessState, error) {
	query := `
		SELECT id, card, credential_hash, created_at,
		       status, load, message, last_seen_at
		FROM agents WHERE id = $1`

	rows, err := s.db.Query(ctx, query, id)
	if err != nil {
		return nil, model.LivenessState{}, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, model.LivenessState{}, err
		}
		return nil, model.LivenessState{}, ErrNotFound
	}
	e, err := scanEntry(rows)
	if err != nil {
		return nil, model.LivenessState{}, err
	}
	return e.Record, e.Liveness, nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context) ([]Entry, error) {
	query := `
		SELECT id, card, credential_hash, created_at,
		       status, load, message, last_seen_at
		FROM agents
		ORDER BY created_at, id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpdateLiveness implements Store. One UPDATE replaces all mutable columns,
// so a racing heartbeat can never observe or produce a half-written state.
func (s *PostgresStore) UpdateLiveness(ctx context.Context, id string, state model.LivenessState) error {
	query := `
		UPDATE agents SET
			status       = $2,
			load         = $3,
			message      = $4,
			last_seen_at = $5
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, query, id, state.Status, state.Load, state.Message, state.LastSeenAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanEntry reads one agents row from a pgx.Rows cursor.
func scanEntry(rows pgx.Rows) (Entry, error) {
	var (
		rec     model.AgentRecord
		state   model.LivenessState
		cardRaw []byte
	)
	err := rows.Scan(
		&rec.ID, &cardRaw, &rec.CredentialHash, &rec.CreatedAt,
		&state.Status, &state.Load, &state.Message, &state.LastSeenAt,
	)
	if err != nil {
		return Entry{}, err
	}
	if err := json.Unmarshal(cardRaw, &rec.Card); err != nil {
		return Entry{}, fmt.Errorf("unmarshal card: %w", err)
	}
	return Entry{Record: &rec, Liveness: state}, nil
}
