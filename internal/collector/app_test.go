package collector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"herb-collector/internal/domain"
	"herb-collector/internal/localstore"
	"herb-collector/internal/merge"
	"herb-collector/internal/remote"
	"herb-collector/internal/websocket"
)

type mockRemote struct {
	mu        sync.Mutex
	records   []domain.CollectionRecord
	submitErr error
	listCalls int
	submitted int
	events    chan *websocket.Message
}

func (m *mockRemote) List(ctx context.Context) ([]domain.CollectionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	return append([]domain.CollectionRecord(nil), m.records...), nil
}

func (m *mockRemote) Submit(ctx context.Context, rec *domain.CollectionRecord) (*domain.CollectionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	m.submitted++
	created := *rec
	created.ID = "srv-" + rec.BatchID
	created.Synced = true
	m.records = append(m.records, created)
	return &created, nil
}

func (m *mockRemote) Listen(ctx context.Context, handle func(*websocket.Message)) error {
	if m.events == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-m.events:
			handle(msg)
		}
	}
}

func (m *mockRemote) setSubmitErr(err error) {
	m.mu.Lock()
	m.submitErr = err
	m.mu.Unlock()
}

func (m *mockRemote) counts() (list, submitted int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls, m.submitted
}

type mockMonitor struct {
	online    atomic.Bool
	mu        sync.Mutex
	reconnect []func()
}

func newMockMonitor(online bool) *mockMonitor {
	m := &mockMonitor{}
	m.online.Store(online)
	return m
}

func (m *mockMonitor) Online() bool                   { return m.online.Load() }
func (m *mockMonitor) Check(ctx context.Context) bool { return m.online.Load() }
func (m *mockMonitor) Start(ctx context.Context)      {}
func (m *mockMonitor) Wait()                          {}

func (m *mockMonitor) OnReconnect(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnect = append(m.reconnect, fn)
}

func (m *mockMonitor) goOnline() {
	m.online.Store(true)
	m.mu.Lock()
	fns := append([]func(){}, m.reconnect...)
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func newTestApp(t *testing.T, online bool) (*App, *localstore.Store, *mockRemote, *mockMonitor) {
	t.Helper()

	store, err := localstore.Open(":memory:", nil)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	rem := &mockRemote{}
	mon := newMockMonitor(online)
	app := New(store, rem, mon, &Options{SyncInterval: time.Hour, ReconnectDelay: 10 * time.Millisecond})
	return app, store, rem, mon
}

func captureRequest(batch string) CaptureRequest {
	return CaptureRequest{Record: domain.CollectionRecord{
		BatchID:      batch,
		CollectorID:  "C1",
		SpeciesName:  "Ashwagandha",
		Latitude:     12.9,
		Longitude:    77.6,
		QualityGrade: domain.QualityPremium,
		Weight:       1.5,
	}}
}

func TestCaptureOnlineSubmitsDirectly(t *testing.T) {
	app, store, rem, _ := newTestApp(t, true)
	ctx := context.Background()

	res, err := app.Capture(ctx, captureRequest("B1"))
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if res.Status != CaptureSubmitted || res.Record.ID != "srv-B1" {
		t.Errorf("unexpected result: %+v", res)
	}
	if _, submitted := rem.counts(); submitted != 1 {
		t.Errorf("expected 1 submission, got %d", submitted)
	}

	all, _ := store.ListAll(ctx)
	if len(all) != 0 {
		t.Errorf("online capture should not be stored locally, got %d", len(all))
	}
}

func TestCaptureOfflineQueues(t *testing.T) {
	app, _, rem, _ := newTestApp(t, false)
	ctx := context.Background()

	res, err := app.Capture(ctx, captureRequest("B1"))
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if res.Status != CaptureQueued || res.Record.LocalID == 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	if _, submitted := rem.counts(); submitted != 0 {
		t.Error("offline capture must not contact the server")
	}

	pending, _ := app.Pending(ctx)
	if len(pending) != 1 || pending[0].Synced {
		t.Errorf("expected one pending record, got %+v", pending)
	}
}

func TestCaptureTransientFailureQueues(t *testing.T) {
	app, _, rem, _ := newTestApp(t, true)
	rem.setSubmitErr(&remote.StatusError{StatusCode: 503})

	res, err := app.Capture(context.Background(), captureRequest("B1"))
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if res.Status != CaptureQueued || res.Cause == nil {
		t.Errorf("expected queued result with cause, got %+v", res)
	}
	if n, _ := app.PendingCount(context.Background()); n != 1 {
		t.Errorf("expected 1 pending, got %d", n)
	}
}

func TestCaptureRejectionIsNotStored(t *testing.T) {
	app, _, rem, _ := newTestApp(t, true)
	rem.setSubmitErr(errors.Join(remote.ErrRejected, &domain.ValidationError{}))

	if _, err := app.Capture(context.Background(), captureRequest("B1")); !errors.Is(err, remote.ErrRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if n, _ := app.PendingCount(context.Background()); n != 0 {
		t.Errorf("rejected record must not be stored, got %d pending", n)
	}
}

func TestCaptureValidatesBeforeStoring(t *testing.T) {
	app, _, _, _ := newTestApp(t, false)

	req := captureRequest("")
	if _, err := app.Capture(context.Background(), req); !domain.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if n, _ := app.PendingCount(context.Background()); n != 0 {
		t.Errorf("invalid record must not be stored, got %d pending", n)
	}
}

func TestCaptureDraft(t *testing.T) {
	app, store, rem, _ := newTestApp(t, true)
	ctx := context.Background()

	req := CaptureRequest{Record: domain.CollectionRecord{SpeciesName: "Tulsi"}, Draft: true}
	res, err := app.Capture(ctx, req)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if res.Status != CaptureDraft {
		t.Errorf("expected draft status, got %s", res.Status)
	}
	if _, submitted := rem.counts(); submitted != 0 {
		t.Error("draft must not be submitted")
	}

	got, err := store.Get(ctx, res.Record.LocalID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.IsDraft || got.Synced {
		t.Errorf("expected pending draft, got %+v", got)
	}
}

func TestCollectionsMergesAndCaches(t *testing.T) {
	app, store, rem, _ := newTestApp(t, true)
	ctx := context.Background()

	rem.records = []domain.CollectionRecord{{
		ID: "s1", BatchID: "B1", CollectorID: "C1", SpeciesName: "Ashwagandha",
		Timestamp: time.Now().Add(-time.Hour),
	}}
	dup := captureRequest("B1").Record
	other := captureRequest("B2").Record
	store.Put(ctx, &dup)
	store.Put(ctx, &other)

	view, err := app.Collections(ctx)
	if err != nil {
		t.Fatalf("Collections failed: %v", err)
	}
	if len(view.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(view.Entries))
	}
	if view.Entries[0].Source != merge.SourceLocal || view.Entries[1].DisplayID != "s1" {
		t.Errorf("unexpected entries: %+v", view.Entries)
	}
	if view.Summary != (merge.Summary{Total: 2, Server: 1, LocalPending: 1}) {
		t.Errorf("unexpected summary: %+v", view.Summary)
	}

	app.Collections(ctx)
	if list, _ := rem.counts(); list != 1 {
		t.Errorf("expected cached listing, got %d list calls", list)
	}

	app.Cache().Invalidate()
	app.Collections(ctx)
	if list, _ := rem.counts(); list != 2 {
		t.Errorf("expected refetch after invalidate, got %d list calls", list)
	}
}

func TestCollectionsOfflineSkipsServer(t *testing.T) {
	app, _, rem, _ := newTestApp(t, false)

	view, err := app.Collections(context.Background())
	if err != nil {
		t.Fatalf("Collections failed: %v", err)
	}
	if view.Online {
		t.Error("expected offline view")
	}
	if list, _ := rem.counts(); list != 0 {
		t.Errorf("offline view must not list the server, got %d calls", list)
	}
}

func TestSyncNowInvalidatesCache(t *testing.T) {
	app, _, rem, _ := newTestApp(t, false)
	ctx := context.Background()

	if _, err := app.Capture(ctx, captureRequest("B1")); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	app.cache.Get(ctx, rem.List)

	res, err := app.SyncNow(ctx)
	if err != nil {
		t.Fatalf("SyncNow failed: %v", err)
	}
	if res.Succeeded != 1 {
		t.Errorf("expected 1 synced, got %s", res)
	}
	if _, fresh := app.Cache().Fresh(); fresh {
		t.Error("expected cache to be invalidated after a successful sync")
	}
}

func TestRunSyncsOnReconnect(t *testing.T) {
	app, _, rem, mon := newTestApp(t, false)
	ctx, cancel := context.WithCancel(context.Background())

	if _, err := app.Capture(ctx, captureRequest("B1")); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	counts := make(chan int, 16)
	app.OnPendingCount(func(n int) { counts <- n })

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	if n := <-counts; n != 1 {
		t.Errorf("expected initial pending count 1, got %d", n)
	}

	mon.goOnline()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case n := <-counts:
			if n != 0 {
				continue
			}
		case <-deadline:
			t.Fatal("pending count never reached 0 after reconnect")
		}
		break
	}
	if _, submitted := rem.counts(); submitted != 1 {
		t.Errorf("expected 1 submission, got %d", submitted)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
}

func TestRunInvalidatesCacheOnServerEvent(t *testing.T) {
	app, _, rem, _ := newTestApp(t, true)
	rem.events = make(chan *websocket.Message)
	ctx, cancel := context.WithCancel(context.Background())
	app.cache.Get(ctx, rem.List)

	done := make(chan struct{})
	go func() {
		app.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	msg, _ := websocket.NewMessage(websocket.TypeCollectionCreated, nil)
	select {
	case rem.events <- msg:
	case <-time.After(2 * time.Second):
		t.Fatal("listener never started")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, fresh := app.Cache().Fresh(); !fresh {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("cache not invalidated after collection_created")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRunDoesNotStackReconnectHandlers(t *testing.T) {
	app, _, rem, mon := newTestApp(t, false)

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- app.Run(ctx) }()
		cancel()
		if err := <-done; err != nil {
			t.Fatalf("Run returned %v", err)
		}
	}

	mon.mu.Lock()
	handlers := len(mon.reconnect)
	mon.mu.Unlock()
	if handlers != 1 {
		t.Errorf("expected a single reconnect handler, got %d", handlers)
	}

	// Reconnecting while nothing runs must not block or sync.
	mon.goOnline()
	mon.goOnline()
	if _, submitted := rem.counts(); submitted != 0 {
		t.Errorf("expected no submissions outside Run, got %d", submitted)
	}
}
