package library

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"chain-keeper/pkg/chain"
	"chain-keeper/pkg/checksum"
)

// PgStore is a PostgreSQL-backed chain library.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PgStore.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const recordColumns = `id, name, version, migration, checksum, doc_timestamp, content, created_at`

// EnsureTable creates the chains table if it doesn't exist.
func (s *PgStore) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS chains (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			version       TEXT NOT NULL,
			migration     INTEGER,
			checksum      TEXT,
			doc_timestamp TEXT,
			content       JSONB NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_chains_created ON chains(created_at, id)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_chains_name ON chains(name)`)
	return err
}

// Save stores doc under a new id.
func (s *PgStore) Save(ctx context.Context, name string, doc *chain.Document) (*Record, error) {
	contentJSON, err := json.Marshal(doc.Content)
	if err != nil {
		return nil, fmt.Errorf("marshal content: %w", err)
	}

	r := &Record{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Name:      name,
		Document:  doc.Clone(),
		CreatedAt: time.Now().Truncate(time.Microsecond),
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO chains (id, name, version, migration, checksum, doc_timestamp, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)`,
		r.ID, r.Name, doc.Version, doc.Migration, doc.Checksum, doc.Timestamp, string(contentJSON), r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert chain %s: %w", name, err)
	}
	return r, nil
}

// Get retrieves a single chain by ID.
func (s *PgStore) Get(ctx context.Context, id string) (*Record, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+recordColumns+` FROM chains WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get chain %s: %w", id, err)
	}
	defer rows.Close()
	recs, err := scanRecordRows(rows)
	if err != nil {
		return nil, fmt.Errorf("get chain %s: %w", id, err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("get chain %s: %w", id, ErrNotFound)
	}
	return &recs[0], nil
}

// List returns the most recently saved chains first.
func (s *PgStore) List(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM chains ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list chains: %w", err)
	}
	defer rows.Close()
	return scanRecordRows(rows)
}

// Delete removes a chain.
func (s *PgStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chains WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete chain %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete chain %s: %w", id, ErrNotFound)
	}
	return nil
}

// Count returns the number of stored chains.
func (s *PgStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chains`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count chains: %w", err)
	}
	return n, nil
}

// Verify walks every stored chain in save order and reports those whose
// recorded checksum no longer matches their content.
func (s *PgStore) Verify(ctx context.Context) ([]Problem, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+recordColumns+` FROM chains ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("verify chains query: %w", err)
	}
	defer rows.Close()

	recs, err := scanRecordRows(rows)
	if err != nil {
		return nil, fmt.Errorf("verify chains: %w", err)
	}
	return verifyRecords(recs)
}

func verifyRecords(recs []Record) ([]Problem, error) {
	var problems []Problem
	for _, r := range recs {
		status, err := checksum.Verify(r.Document)
		if err != nil {
			return nil, fmt.Errorf("verify chain %s: %w", r.ID, err)
		}
		if status == checksum.Mismatch {
			problems = append(problems, Problem{ID: r.ID, Name: r.Name, Status: status})
		}
	}
	return problems, nil
}

func scanRecordRows(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]Record, error) {
	var recs []Record
	for rows.Next() {
		var r Record
		var doc chain.Document
		var contentJSON []byte
		if err := rows.Scan(&r.ID, &r.Name, &doc.Version, &doc.Migration, &doc.Checksum, &doc.Timestamp, &contentJSON, &r.CreatedAt); err != nil {
			return nil, err
		}
		if err := chain.DecodeJSON(contentJSON, &doc.Content); err != nil {
			return nil, fmt.Errorf("unmarshal content of chain %s: %w", r.ID, err)
		}
		r.Document = &doc
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return recs, nil
}
