package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"herb-collector/internal/domain"
	"herb-collector/internal/websocket"

	ws "github.com/gorilla/websocket"
)

func testRecord() *domain.CollectionRecord {
	moisture := 8.5
	return &domain.CollectionRecord{
		LocalID:         12,
		ClientRef:       "ref-123",
		BatchID:         "B1",
		CollectorID:     "C1",
		SpeciesName:     "Tulsi",
		Latitude:        12.5,
		Longitude:       77.25,
		QualityGrade:    domain.QualityPremium,
		MoistureContent: &moisture,
		Weight:          3,
		Synced:          false,
		IsDraft:         true,
	}
}

func TestSubmitSendsMultipartForm(t *testing.T) {
	var form map[string][]string
	var photo []byte
	var photoType, idempotency string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/collection" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		idempotency = r.Header.Get(IdempotencyHeader)

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("bad multipart body: %v", err)
		}
		form = r.MultipartForm.Value

		f, hdr, err := r.FormFile("photo")
		if err == nil {
			photo, _ = io.ReadAll(f)
			photoType = hdr.Header.Get("Content-Type")
			f.Close()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"id":           "srv-1",
			"batchId":      "B1",
			"collectorId":  "C1",
			"speciesName":  "Tulsi",
			"qualityGrade": "premium",
			"timestamp":    time.Now(),
			"synced":       true,
		})
	}))
	defer srv.Close()

	rec := testRecord()
	rec.Photo = &domain.Photo{Filename: "leaf.png", ContentType: "image/png", Data: []byte("png-bytes")}

	c := NewClient(srv.URL, time.Second, nil)
	created, err := c.Submit(context.Background(), rec)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if created.ID != "srv-1" || !created.Synced {
		t.Errorf("unexpected created record: %+v", created)
	}

	if idempotency != "ref-123" {
		t.Errorf("expected idempotency key ref-123, got %q", idempotency)
	}
	for field, want := range map[string]string{
		"batchId":         "B1",
		"speciesName":     "Tulsi",
		"latitude":        "12.5",
		"longitude":       "77.25",
		"qualityGrade":    "premium",
		"moistureContent": "8.5",
		"weight":          "3",
		"clientRef":       "ref-123",
	} {
		if got := form[field]; len(got) != 1 || got[0] != want {
			t.Errorf("field %s: got %v, want %s", field, got, want)
		}
	}
	for _, field := range []string{"id", "localId", "synced", "isDraft", "accuracy", "notes"} {
		if _, ok := form[field]; ok {
			t.Errorf("field %s should not be sent", field)
		}
	}
	if string(photo) != "png-bytes" || photoType != "image/png" {
		t.Errorf("photo part not sent correctly: %q (%s)", photo, photoType)
	}
}

func TestSubmitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Invalid data","errors":[{"field":"batchId","message":"is required"}]}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, nil).Submit(context.Background(), testRecord())
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}

	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(ve.Errors) != 1 || ve.Errors[0].Field != "batchId" {
		t.Errorf("unexpected field errors: %+v", ve.Errors)
	}
	if IsTransient(err) {
		t.Error("rejection must not be transient")
	}
}

func TestSubmitServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"Failed to create collection"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, nil).Submit(context.Background(), testRecord())

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusInternalServerError || se.Message != "Failed to create collection" {
		t.Errorf("unexpected status error: %+v", se)
	}
	if !IsTransient(err) {
		t.Error("5xx must be transient")
	}
}

func TestSubmitTimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(srv.URL, 50*time.Millisecond, nil).Submit(context.Background(), testRecord())
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !IsTransient(err) {
		t.Errorf("timeout must be transient, got %v", err)
	}
}

func TestSubmitUnreachableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, time.Second, nil).Submit(context.Background(), testRecord())
	if err == nil || !IsTransient(err) {
		t.Errorf("expected transient error, got %v", err)
	}
}

func TestList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/collections" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id":"s2","batchId":"B2","collectorId":"C1","speciesName":"Neem","qualityGrade":"low","timestamp":"2024-05-02T10:00:00Z","synced":true},
			{"id":"s1","batchId":"B1","collectorId":"C1","speciesName":"Tulsi","qualityGrade":"premium","timestamp":"2024-05-01T10:00:00Z","synced":true}
		]`))
	}))
	defer srv.Close()

	records, err := NewClient(srv.URL+"/", time.Second, nil).List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 2 || records[0].ID != "s2" || records[1].SpeciesName != "Tulsi" {
		t.Errorf("unexpected records: %+v", records)
	}
}

func TestEventsURL(t *testing.T) {
	tests := map[string]string{
		"http://localhost:8080":   "ws://localhost:8080/ws",
		"https://api.example.org": "wss://api.example.org/ws",
	}
	for base, want := range tests {
		if got := NewClient(base, time.Second, nil).EventsURL(); got != want {
			t.Errorf("EventsURL(%s) = %s, want %s", base, got, want)
		}
	}
}

func TestListenDeliversEvents(t *testing.T) {
	upgrader := ws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		msg, _ := websocket.NewMessage(websocket.TypeCollectionCreated, &websocket.CollectionCreatedPayload{ID: "s9"})
		data, _ := json.Marshal(msg)
		pong, _ := json.Marshal(&websocket.Message{Type: websocket.TypePong})
		conn.WriteMessage(ws.TextMessage, []byte(string(data)+"\n"+string(pong)))
		conn.ReadMessage()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan websocket.MessageType, 4)
	errc := make(chan error, 1)
	go func() {
		errc <- NewClient(srv.URL, time.Second, nil).Listen(ctx, func(m *websocket.Message) {
			got <- m.Type
		})
	}()

	for _, want := range []websocket.MessageType{websocket.TypeCollectionCreated, websocket.TypePong} {
		select {
		case typ := <-got:
			if typ != want {
				t.Errorf("got event %s, want %s", typ, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}

	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) && !strings.Contains(err.Error(), "closed") {
			t.Errorf("unexpected listen error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return after cancel")
	}
}

func TestListenLogsMalformedEventsToClientLogger(t *testing.T) {
	upgrader := ws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		msg, _ := websocket.NewMessage(websocket.TypeCollectionCreated, nil)
		data, _ := json.Marshal(msg)
		conn.WriteMessage(ws.TextMessage, []byte("{broken\n"+string(data)))
		conn.ReadMessage()
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := log.New(&buf, "[remote] ", 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan websocket.MessageType, 1)
	go NewClient(srv.URL, time.Second, logger).Listen(ctx, func(m *websocket.Message) {
		got <- m.Type
	})

	select {
	case typ := <-got:
		if typ != websocket.TypeCollectionCreated {
			t.Errorf("unexpected event %s", typ)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the valid event")
	}

	if !strings.HasPrefix(buf.String(), "[remote] ignoring malformed event") {
		t.Errorf("expected malformed event on the client logger, got %q", buf.String())
	}
}
