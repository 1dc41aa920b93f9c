// Package collector is the field client: it captures observations, keeps the
// offline queue moving and produces the merged list shown to the collector.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"herb-collector/internal/connectivity"
	"herb-collector/internal/domain"
	"herb-collector/internal/localstore"
	"herb-collector/internal/merge"
	"herb-collector/internal/remote"
	"herb-collector/internal/syncer"
	"herb-collector/internal/websocket"
)

const (
	DefaultSyncInterval   = 30 * time.Second
	DefaultReconnectDelay = 5 * time.Second
)

// Store is the local queue as the app uses it.
type Store interface {
	Put(ctx context.Context, rec *domain.CollectionRecord) (int64, error)
	ListAll(ctx context.Context) ([]*domain.CollectionRecord, error)
	ListPending(ctx context.Context) ([]*domain.CollectionRecord, error)
	CountPending(ctx context.Context) (int, error)
	MarkSynced(ctx context.Context, id int64) error
	Clear(ctx context.Context) error
	Subscribe() (<-chan localstore.ChangeEvent, func())
	Notify()
}

// Remote is the server as the app uses it.
type Remote interface {
	List(ctx context.Context) ([]domain.CollectionRecord, error)
	Submit(ctx context.Context, rec *domain.CollectionRecord) (*domain.CollectionRecord, error)
	Listen(ctx context.Context, handle func(*websocket.Message)) error
}

// Monitor reports and tracks server reachability.
type Monitor interface {
	Online() bool
	Check(ctx context.Context) bool
	Start(ctx context.Context)
	Wait()
	OnReconnect(fn func())
}

var _ Monitor = (*connectivity.Monitor)(nil)

type Options struct {
	CacheTTL       time.Duration
	SyncInterval   time.Duration
	ReconnectDelay time.Duration
	Logger         *log.Logger
}

type App struct {
	store   Store
	remote  Remote
	monitor Monitor
	engine  *syncer.Engine
	cache   *RemoteCache
	logger  *log.Logger

	syncInterval   time.Duration
	reconnectDelay time.Duration

	// reconnected is signalled by the monitor and drained by Run.
	reconnected chan struct{}

	mu              sync.Mutex
	pendingObserver []func(int)
}

func New(store Store, rem Remote, monitor Monitor, opts *Options) *App {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[collector] ", log.LstdFlags)
	}

	a := &App{
		store:          store,
		remote:         rem,
		monitor:        monitor,
		cache:          NewRemoteCache(opts.CacheTTL),
		logger:         logger,
		syncInterval:   opts.SyncInterval,
		reconnectDelay: opts.ReconnectDelay,
		reconnected:    make(chan struct{}, 1),
	}
	if a.syncInterval <= 0 {
		a.syncInterval = DefaultSyncInterval
	}
	if a.reconnectDelay <= 0 {
		a.reconnectDelay = DefaultReconnectDelay
	}

	a.engine = syncer.New(store, rem, logger)
	a.engine.OnSynced(a.cache.Invalidate)
	monitor.OnReconnect(func() {
		select {
		case a.reconnected <- struct{}{}:
		default:
		}
	})
	return a
}

func (a *App) Cache() *RemoteCache {
	return a.cache
}

type CaptureStatus string

const (
	CaptureSubmitted CaptureStatus = "submitted"
	CaptureQueued    CaptureStatus = "queued"
	CaptureDraft     CaptureStatus = "draft"
)

type CaptureRequest struct {
	Record domain.CollectionRecord
	Draft  bool
}

type CaptureResult struct {
	Status CaptureStatus
	Record *domain.CollectionRecord

	// Cause is the transient submission error that sent an online capture to
	// the queue.
	Cause error
}

// Capture validates and records one observation. Drafts and offline captures
// go to the local queue. Online captures are submitted directly and queued
// only when the submission fails transiently; a rejection is returned and
// nothing is stored.
func (a *App) Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	rec := req.Record
	rec.LocalID = 0
	rec.ID = ""
	rec.Synced = false
	rec.IsDraft = req.Draft

	if req.Draft {
		if err := domain.ValidateDraft(&rec); err != nil {
			return nil, err
		}
		if _, err := a.store.Put(ctx, &rec); err != nil {
			return nil, fmt.Errorf("failed to save draft: %w", err)
		}
		return &CaptureResult{Status: CaptureDraft, Record: &rec}, nil
	}

	if err := domain.Validate(&rec); err != nil {
		return nil, err
	}

	if !a.monitor.Online() {
		return a.queue(ctx, &rec, nil)
	}

	created, err := a.remote.Submit(ctx, &rec)
	if err != nil {
		if !remote.IsTransient(err) {
			return nil, err
		}
		a.logger.Printf("submission failed, queueing locally: %v", err)
		return a.queue(ctx, &rec, err)
	}

	a.cache.Invalidate()
	return &CaptureResult{Status: CaptureSubmitted, Record: created}, nil
}

func (a *App) queue(ctx context.Context, rec *domain.CollectionRecord, cause error) (*CaptureResult, error) {
	if _, err := a.store.Put(ctx, rec); err != nil {
		if cause != nil {
			return nil, fmt.Errorf("failed to queue record after %v: %w", cause, err)
		}
		return nil, fmt.Errorf("failed to queue record: %w", err)
	}
	return &CaptureResult{Status: CaptureQueued, Record: rec, Cause: cause}, nil
}

// View is the merged collection list with its counts.
type View struct {
	Entries []merge.Entry `json:"entries"`
	Summary merge.Summary `json:"summary"`
	Online  bool          `json:"online"`

	// RemoteErr is set when the server listing could not be refreshed; the
	// view then shows the last cached listing.
	RemoteErr error `json:"-"`
}

// Collections merges local records with the server listing. The server is
// only asked when online and the cached listing is stale.
func (a *App) Collections(ctx context.Context) (*View, error) {
	local, err := a.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read local records: %w", err)
	}

	online := a.monitor.Online()
	var remoteRecords []domain.CollectionRecord
	var remoteErr error
	if online {
		remoteRecords, remoteErr = a.cache.Get(ctx, a.remote.List)
		if remoteErr != nil {
			a.logger.Printf("failed to refresh server listing: %v", remoteErr)
		}
	} else {
		remoteRecords, _ = a.cache.Cached()
	}

	localRecords := make([]domain.CollectionRecord, len(local))
	for i, r := range local {
		localRecords[i] = *r
	}

	entries := merge.BuildView(remoteRecords, localRecords)
	return &View{
		Entries:   entries,
		Summary:   merge.Summarize(entries),
		Online:    online,
		RemoteErr: remoteErr,
	}, nil
}

func (a *App) SyncNow(ctx context.Context) (syncer.Result, error) {
	return a.engine.SyncAll(ctx)
}

func (a *App) Retry(ctx context.Context, localID int64) error {
	return a.engine.Retry(ctx, localID)
}

func (a *App) Pending(ctx context.Context) ([]*domain.CollectionRecord, error) {
	return a.store.ListPending(ctx)
}

func (a *App) PendingCount(ctx context.Context) (int, error) {
	return a.store.CountPending(ctx)
}

// Clear drops every local record, pending ones included.
func (a *App) Clear(ctx context.Context) error {
	return a.store.Clear(ctx)
}

// OnPendingCount registers fn to receive the pending count whenever the store
// changes and on every sync tick while Run is active.
func (a *App) OnPendingCount(fn func(int)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pendingObserver = append(a.pendingObserver, fn)
}

// Run keeps the queue moving until ctx is cancelled: it watches connectivity,
// syncs at startup, on reconnect and periodically, reports pending counts and
// invalidates the server listing when the server announces new records.
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	events, unsubscribe := a.store.Subscribe()
	defer unsubscribe()

	if a.monitor.Check(ctx) {
		a.autoSync(ctx, "startup")
	}
	a.monitor.Start(ctx)

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.listen(ctx)
	}()

	ticker := time.NewTicker(a.syncInterval)
	defer ticker.Stop()

	a.publishPending(ctx)
	for {
		select {
		case <-ctx.Done():
			a.monitor.Wait()
			wg.Wait()
			return nil

		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			a.publishPending(ctx)

		case <-a.reconnected:
			a.autoSync(ctx, "reconnect")

		case <-ticker.C:
			a.publishPending(ctx)
			if a.monitor.Online() {
				a.autoSync(ctx, "periodic")
			}
		}
	}
}

func (a *App) autoSync(ctx context.Context, reason string) {
	n, err := a.store.CountPending(ctx)
	if err != nil {
		a.logger.Printf("%s sync skipped: %v", reason, err)
		return
	}
	if n == 0 {
		return
	}

	res, err := a.engine.SyncAll(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			a.logger.Printf("%s sync failed: %v", reason, err)
		}
		return
	}
	a.logger.Printf("%s sync: %s", reason, res)
}

func (a *App) publishPending(ctx context.Context) {
	n, err := a.store.CountPending(ctx)
	if err != nil {
		if ctx.Err() == nil {
			a.logger.Printf("failed to count pending records: %v", err)
		}
		return
	}

	a.mu.Lock()
	observers := append([]func(int){}, a.pendingObserver...)
	a.mu.Unlock()

	for _, fn := range observers {
		fn(n)
	}
}

func (a *App) listen(ctx context.Context) {
	for {
		err := a.remote.Listen(ctx, func(msg *websocket.Message) {
			if msg.Type == websocket.TypeCollectionCreated {
				a.cache.Invalidate()
			}
		})
		if ctx.Err() != nil {
			return
		}
		a.logger.Printf("event stream unavailable: %v", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(a.reconnectDelay):
		}
	}
}
