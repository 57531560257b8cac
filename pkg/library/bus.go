package library

import (
	"context"
	"sync"

	"chain-keeper/pkg/chain"
)

// ChangeKind says what happened to a stored chain.
type ChangeKind string

const (
	ChangeSaved   ChangeKind = "saved"
	ChangeDeleted ChangeKind = "deleted"
)

// Change is one library mutation. Record is nil for deletions.
type Change struct {
	Kind   ChangeKind `json:"kind"`
	ID     string     `json:"id"`
	Record *Record    `json:"record,omitempty"`
}

// Bus wraps a Store with in-process fan-out notification. Every successful
// Save or Delete is delivered to all subscribers.
type Bus struct {
	Store
	mu   sync.RWMutex
	subs map[chan Change]struct{}
}

// NewBus creates a Bus wrapping the given store.
func NewBus(store Store) *Bus {
	return &Bus{
		Store: store,
		subs:  make(map[chan Change]struct{}),
	}
}

// Save delegates to the underlying store, then notifies subscribers.
func (b *Bus) Save(ctx context.Context, name string, doc *chain.Document) (*Record, error) {
	r, err := b.Store.Save(ctx, name, doc)
	if err != nil {
		return nil, err
	}
	b.publish(Change{Kind: ChangeSaved, ID: r.ID, Record: r})
	return r, nil
}

// Delete delegates to the underlying store, then notifies subscribers.
func (b *Bus) Delete(ctx context.Context, id string) error {
	if err := b.Store.Delete(ctx, id); err != nil {
		return err
	}
	b.publish(Change{Kind: ChangeDeleted, ID: id})
	return nil
}

func (b *Bus) publish(c Change) {
	b.mu.RLock()
	for ch := range b.subs {
		select {
		case ch <- c:
		default:
			// subscriber is behind; drop rather than block the writer
		}
	}
	b.mu.RUnlock()
}

// Subscribe returns a buffered channel that receives all new changes.
func (b *Bus) Subscribe() chan Change {
	ch := make(chan Change, 64)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan Change) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
	close(ch)
}
