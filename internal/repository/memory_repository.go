package repository

import (
	"context"
	"sync"

	"herb-collector/internal/domain"
)

// memoryCollectionRepository keeps records in process memory. Contents are
// lost on restart.
type memoryCollectionRepository struct {
	mu      sync.RWMutex
	records map[string]*domain.CollectionRecord
	refs    map[string]string
}

func NewMemoryCollectionRepository() CollectionRepository {
	return &memoryCollectionRepository{
		records: make(map[string]*domain.CollectionRecord),
		refs:    make(map[string]string),
	}
}

func (r *memoryCollectionRepository) Create(ctx context.Context, rec *domain.CollectionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *rec
	r.records[rec.ID] = &cp
	if rec.ClientRef != "" {
		r.refs[rec.ClientRef] = rec.ID
	}
	return nil
}

func (r *memoryCollectionRepository) FindByID(ctx context.Context, id string) (*domain.CollectionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *memoryCollectionRepository) FindByClientRef(ctx context.Context, clientRef string) (*domain.CollectionRecord, error) {
	r.mu.RLock()
	id, ok := r.refs[clientRef]
	r.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *memoryCollectionRepository) List(ctx context.Context) ([]*domain.CollectionRecord, error) {
	r.mu.RLock()
	records := make([]*domain.CollectionRecord, 0, len(r.records))
	for _, rec := range r.records {
		cp := *rec
		records = append(records, &cp)
	}
	r.mu.RUnlock()

	sortNewestFirst(records)
	return records, nil
}
