// Package syncer pushes locally queued collection records to the server.
//
// A batch walks the pending queue strictly in order, one submission at a
// time. A failed item stays pending and never aborts the batch. Concurrent
// SyncAll callers share the in-flight batch, and batch and single-record
// retries never submit in parallel.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"golang.org/x/sync/singleflight"

	"herb-collector/internal/domain"
)

// ErrNotFound is returned by Retry when the id is not among pending records.
var ErrNotFound = errors.New("item not found")

// Store is the slice of the local store the engine needs.
type Store interface {
	ListPending(ctx context.Context) ([]*domain.CollectionRecord, error)
	MarkSynced(ctx context.Context, id int64) error
	Notify()
}

// Remote submits one record and returns the server's copy.
type Remote interface {
	Submit(ctx context.Context, rec *domain.CollectionRecord) (*domain.CollectionRecord, error)
}

// Result counts the outcome of one batch.
type Result struct {
	Succeeded int
	Failed    int
}

func (r Result) String() string {
	return fmt.Sprintf("%d synced, %d failed", r.Succeeded, r.Failed)
}

type Engine struct {
	store  Store
	remote Remote
	logger *log.Logger

	flight   singleflight.Group
	submitMu sync.Mutex

	invMu        sync.Mutex
	invalidators []func()
}

func New(store Store, remote Remote, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[syncer] ", log.LstdFlags)
	}
	return &Engine{
		store:  store,
		remote: remote,
		logger: logger,
	}
}

// OnSynced registers a callback run after any batch or retry that confirmed
// at least one record, typically a remote listing cache invalidation.
func (e *Engine) OnSynced(fn func()) {
	e.invMu.Lock()
	defer e.invMu.Unlock()
	e.invalidators = append(e.invalidators, fn)
}

// SyncAll submits every pending record. The error is non-nil only when the
// pending list could not be read; per-record failures are counted instead.
// A started batch runs to completion even if the caller that started it
// goes away, since joined callers wait on the same result.
func (e *Engine) SyncAll(ctx context.Context) (Result, error) {
	batchCtx := context.WithoutCancel(ctx)
	v, err, shared := e.flight.Do("sync-all", func() (interface{}, error) {
		return e.syncAll(batchCtx)
	})
	if shared {
		e.logger.Printf("joined in-flight sync batch")
	}
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (e *Engine) syncAll(ctx context.Context) (Result, error) {
	e.submitMu.Lock()
	defer e.submitMu.Unlock()

	pending, err := e.store.ListPending(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read pending records: %w", err)
	}

	var res Result
	for _, rec := range pending {
		if err := e.submit(ctx, rec); err != nil {
			e.logger.Printf("sync of record %d failed: %v", rec.LocalID, err)
			res.Failed++
			continue
		}
		res.Succeeded++
	}

	if len(pending) > 0 {
		e.logger.Printf("sync batch complete: %s", res)
	}
	if res.Succeeded > 0 {
		e.afterSync()
	}
	return res, nil
}

// Retry submits a single pending record immediately. The submission error,
// if any, is returned unchanged; an id that is not pending yields ErrNotFound
// without contacting the server.
func (e *Engine) Retry(ctx context.Context, id int64) error {
	e.submitMu.Lock()
	defer e.submitMu.Unlock()

	pending, err := e.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to read pending records: %w", err)
	}

	var target *domain.CollectionRecord
	for _, rec := range pending {
		if rec.LocalID == id {
			target = rec
			break
		}
	}
	if target == nil {
		return fmt.Errorf("retry record %d: %w", id, ErrNotFound)
	}

	if err := e.submit(ctx, target); err != nil {
		return err
	}

	e.afterSync()
	return nil
}

func (e *Engine) submit(ctx context.Context, rec *domain.CollectionRecord) error {
	if _, err := e.remote.Submit(ctx, rec); err != nil {
		return err
	}

	if err := e.store.MarkSynced(ctx, rec.LocalID); err != nil {
		// The server holds the record; the next batch resubmits it under the
		// same client ref.
		return fmt.Errorf("record %d accepted but not marked synced: %w", rec.LocalID, err)
	}
	return nil
}

func (e *Engine) afterSync() {
	e.invMu.Lock()
	fns := append([]func(){}, e.invalidators...)
	e.invMu.Unlock()

	for _, fn := range fns {
		fn()
	}
	e.store.Notify()
}
