package history

import (
	"context"
	"sync"

	"github.com/promptgate/promptgate/internal/common/errors"
)

// MemoryRepository is an in-process record store. It is the default driver
// and the one the tests use.
type MemoryRepository struct {
	mu         sync.RWMutex
	records    map[string]*Record
	order      []string
	maxRecords int
}

// NewMemoryRepository creates a memory repository keeping at most maxRecords
// entries. A non-positive cap keeps everything.
func NewMemoryRepository(maxRecords int) *MemoryRepository {
	return &MemoryRepository{
		records:    make(map[string]*Record),
		maxRecords: maxRecords,
	}
}

// Save stores a record, evicting the oldest entry when over the cap.
func (r *MemoryRepository) Save(_ context.Context, record *Record) error {
	if record == nil || record.ID == "" {
		return errors.BadRequest("history record requires an id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[record.ID]; !exists {
		r.order = append(r.order, record.ID)
	}
	stored := *record
	r.records[record.ID] = &stored

	for r.maxRecords > 0 && len(r.order) > r.maxRecords {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.records, oldest)
	}

	return nil
}

// Get returns the record with the given execution id.
func (r *MemoryRepository) Get(_ context.Context, id string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[id]
	if !ok {
		return nil, errors.NotFound("execution", id)
	}
	copied := *record
	return &copied, nil
}

// List returns up to limit records, most recent first.
func (r *MemoryRepository) List(_ context.Context, limit int) ([]*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.order) {
		limit = len(r.order)
	}

	out := make([]*Record, 0, limit)
	for i := len(r.order) - 1; i >= 0 && len(out) < limit; i-- {
		if record, ok := r.records[r.order[i]]; ok {
			copied := *record
			out = append(out, &copied)
		}
	}
	return out, nil
}

// Close is a no-op for the in-process store.
func (r *MemoryRepository) Close() {}
