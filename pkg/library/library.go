// Package library persists user-saved chain documents. Documents are stored
// exactly as given; loading them back goes through the loader like any
// other raw document.
package library

import (
	"context"
	"time"

	"chain-keeper/pkg/chain"
	"chain-keeper/pkg/checksum"
)

// Record is one stored chain.
type Record struct {
	ID        string          `json:"id"`   // UUID v7 (time-ordered)
	Name      string          `json:"name"` // user-facing title
	Document  *chain.Document `json:"document"`
	CreatedAt time.Time       `json:"created_at"`
}

// Problem is a stored chain whose checksum does not match its content.
type Problem struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Status checksum.Status `json:"status"`
}

// Store is the contract for chain persistence.
type Store interface {
	Save(ctx context.Context, name string, doc *chain.Document) (*Record, error)
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, limit int) ([]Record, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)

	// Verify walks every stored chain and reports checksum mismatches.
	Verify(ctx context.Context) ([]Problem, error)
	EnsureTable(ctx context.Context) error
}
