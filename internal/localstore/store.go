// Package localstore is the durable on-device queue of collection records.
//
// Records live in a single SQLite table keyed by an auto-incrementing local id,
// with secondary indexes on the synced flag and the capture time. Every
// mutation publishes a ChangeEvent to subscribers so views and pending-count
// observers can refresh without polling.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	"herb-collector/internal/domain"
	"herb-collector/internal/localstore/migrations"

	_ "modernc.org/sqlite"
)

const memoryPath = ":memory:"

// Options tunes a Store. A nil Options uses the defaults.
type Options struct {
	// Logger for store activity (default: stderr logger)
	Logger *log.Logger

	// Now supplies capture timestamps (default: time.Now)
	Now func() time.Time
}

// Store owns the local representation of collection records.
type Store struct {
	db     *sql.DB
	path   string
	now    func() time.Time
	logger *log.Logger

	subsMu  sync.Mutex
	subs    map[int]chan ChangeEvent
	nextSub int
}

// Open opens (creating if needed) the store at path and applies migrations.
// Use ":memory:" for a throwaway store.
func Open(path string, opts *Options) (*Store, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[localstore] ", log.LstdFlags)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	dsn := memoryPath
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, unavailable("create store directory", err)
		}
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve store path: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", filepath.ToSlash(absPath))
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, unavailable("open store", err)
	}

	// One connection keeps writes serialized and an in-memory database alive.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, unavailable("ping store", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		db:     db,
		path:   path,
		now:    now,
		logger: logger,
		subs:   make(map[int]chan ChangeEvent),
	}, nil
}

func runMigrations(db *sql.DB) error {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return unavailable("initialise migrate driver", err)
	}

	sourceDriver, err := iofs.New(migrations.Files, ".")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	defer func() {
		_ = sourceDriver.Close()
	}()

	migrator, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return unavailable("apply migrations", err)
	}

	return nil
}

// Path returns the location the store was opened at.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database and every subscription channel.
func (s *Store) Close() error {
	s.subsMu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.subsMu.Unlock()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	return nil
}

const recordColumns = `id, client_ref, batch_id, collector_id, species_name, latitude, longitude,
	accuracy, quality_grade, moisture_content, weight, notes, photo_url,
	photo_name, photo_type, photo_data, captured_at, synced, is_draft`

// Put persists a new record and returns its local id.
//
// A missing local id is assigned, the capture timestamp is always set to now
// and a client reference is generated when empty. rec.Synced is stored as
// given, so callers leave it false unless they mean to override it. A record
// whose id already exists fails with ErrExists; use Update to replace it.
func (s *Store) Put(ctx context.Context, rec *domain.CollectionRecord) (int64, error) {
	if rec.LocalID != 0 {
		_, err := s.Get(ctx, rec.LocalID)
		if err == nil {
			return 0, fmt.Errorf("put record %d: %w", rec.LocalID, ErrExists)
		}
		if !errors.Is(err, ErrNotFound) {
			return 0, err
		}
	}

	if rec.ClientRef == "" {
		rec.ClientRef = uuid.New().String()
	}
	rec.Timestamp = s.now()

	var explicitID any
	if rec.LocalID != 0 {
		explicitID = rec.LocalID
	}

	name, ctype, data := photoColumns(rec.Photo)
	res, err := s.db.ExecContext(ctx, `
	INSERT INTO collections (
		id, client_ref, batch_id, collector_id, species_name, latitude, longitude,
		accuracy, quality_grade, moisture_content, weight, notes, photo_url,
		photo_name, photo_type, photo_data, captured_at, synced, is_draft
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		explicitID, rec.ClientRef, rec.BatchID, rec.CollectorID, rec.SpeciesName,
		rec.Latitude, rec.Longitude, rec.Accuracy, string(rec.QualityGrade),
		rec.MoistureContent, rec.Weight, rec.Notes, rec.PhotoURL,
		name, ctype, data, rec.Timestamp.UnixNano(), rec.Synced, rec.IsDraft,
	)
	if err != nil {
		return 0, unavailable("put record", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, unavailable("put record", err)
	}
	rec.LocalID = id

	s.publish(ChangeEvent{Op: OpPut, LocalID: id})
	return id, nil
}

// Update replaces every stored field of an existing record.
func (s *Store) Update(ctx context.Context, rec *domain.CollectionRecord) error {
	name, ctype, data := photoColumns(rec.Photo)
	res, err := s.db.ExecContext(ctx, `
	UPDATE collections SET
		client_ref = ?, batch_id = ?, collector_id = ?, species_name = ?,
		latitude = ?, longitude = ?, accuracy = ?, quality_grade = ?,
		moisture_content = ?, weight = ?, notes = ?, photo_url = ?,
		photo_name = ?, photo_type = ?, photo_data = ?, synced = ?, is_draft = ?
	WHERE id = ?`,
		rec.ClientRef, rec.BatchID, rec.CollectorID, rec.SpeciesName,
		rec.Latitude, rec.Longitude, rec.Accuracy, string(rec.QualityGrade),
		rec.MoistureContent, rec.Weight, rec.Notes, rec.PhotoURL,
		name, ctype, data, rec.Synced, rec.IsDraft, rec.LocalID,
	)
	if err != nil {
		return unavailable("update record", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("update record", err)
	}
	if n == 0 {
		return fmt.Errorf("update record %d: %w", rec.LocalID, ErrNotFound)
	}

	s.publish(ChangeEvent{Op: OpUpdate, LocalID: rec.LocalID})
	return nil
}

// Get returns the record with the given local id or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (*domain.CollectionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM collections WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get record %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("get record", err)
	}
	return rec, nil
}

// ListPending returns every record not yet acknowledged by the server,
// drafts included. The order is local id ascending but callers must not rely
// on it.
func (s *Store) ListPending(ctx context.Context) ([]*domain.CollectionRecord, error) {
	return s.query(ctx, "list pending records",
		`SELECT `+recordColumns+` FROM collections WHERE synced = 0 ORDER BY id ASC`)
}

// ListAll returns every record, most recent capture first.
func (s *Store) ListAll(ctx context.Context) ([]*domain.CollectionRecord, error) {
	return s.query(ctx, "list records",
		`SELECT `+recordColumns+` FROM collections ORDER BY captured_at DESC, id DESC`)
}

// CountPending returns the number of unsynced records.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM collections WHERE synced = 0`).Scan(&n); err != nil {
		return 0, unavailable("count pending records", err)
	}
	return n, nil
}

// MarkSynced flags a record as acknowledged by the server. An unknown id is
// logged and ignored.
func (s *Store) MarkSynced(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE collections SET synced = 1 WHERE id = ?`, id)
	if err != nil {
		return unavailable("mark synced", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("mark synced", err)
	}
	if n == 0 {
		s.logger.Printf("mark synced: record %d not found (ignored)", id)
		return nil
	}

	s.publish(ChangeEvent{Op: OpSynced, LocalID: id})
	return nil
}

// Delete removes a record. Deleting an unknown id returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id)
	if err != nil {
		return unavailable("delete record", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("delete record", err)
	}
	if n == 0 {
		return fmt.Errorf("delete record %d: %w", id, ErrNotFound)
	}

	s.publish(ChangeEvent{Op: OpDelete, LocalID: id})
	return nil
}

// Clear removes every local record.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM collections`); err != nil {
		return unavailable("clear records", err)
	}

	s.logger.Printf("all local records cleared")
	s.publish(ChangeEvent{Op: OpClear})
	return nil
}

func (s *Store) query(ctx context.Context, op, query string, args ...any) ([]*domain.CollectionRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()

	var records []*domain.CollectionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, unavailable(op, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}

	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*domain.CollectionRecord, error) {
	var (
		rec        domain.CollectionRecord
		grade      string
		accuracy   sql.NullFloat64
		moisture   sql.NullFloat64
		notes      sql.NullString
		photoURL   sql.NullString
		photoName  sql.NullString
		photoType  sql.NullString
		photoData  []byte
		capturedAt int64
	)

	err := row.Scan(
		&rec.LocalID, &rec.ClientRef, &rec.BatchID, &rec.CollectorID, &rec.SpeciesName,
		&rec.Latitude, &rec.Longitude, &accuracy, &grade, &moisture, &rec.Weight,
		&notes, &photoURL, &photoName, &photoType, &photoData, &capturedAt,
		&rec.Synced, &rec.IsDraft,
	)
	if err != nil {
		return nil, err
	}

	rec.QualityGrade = domain.QualityGrade(grade)
	rec.Timestamp = time.Unix(0, capturedAt)
	if accuracy.Valid {
		rec.Accuracy = &accuracy.Float64
	}
	if moisture.Valid {
		rec.MoistureContent = &moisture.Float64
	}
	if notes.Valid {
		rec.Notes = &notes.String
	}
	if photoURL.Valid {
		rec.PhotoURL = &photoURL.String
	}
	if len(photoData) > 0 {
		rec.Photo = &domain.Photo{
			Filename:    photoName.String,
			ContentType: photoType.String,
			Data:        photoData,
		}
	}

	return &rec, nil
}

func photoColumns(p *domain.Photo) (name, ctype any, data []byte) {
	if p == nil || len(p.Data) == 0 {
		return nil, nil, nil
	}
	return p.Filename, p.ContentType, p.Data
}
