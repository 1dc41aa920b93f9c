package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"herb-collector/internal/domain"
	"herb-collector/internal/repository"
	"herb-collector/internal/websocket"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const UploadsURLPrefix = "/uploads/"

var (
	ErrPhotoTooLarge = errors.New("photo exceeds upload limit")
	ErrInvalidPhoto  = errors.New("only image uploads are allowed")
)

type Broadcaster interface {
	Broadcast(message *websocket.Message) error
}

type CollectionService struct {
	repo        repository.CollectionRepository
	broadcaster Broadcaster
	uploadsDir  string
	maxUpload   int64
	now         func() time.Time

	// serializes the client-ref lookup with the insert
	createMu sync.Mutex
}

func NewCollectionService(repo repository.CollectionRepository, broadcaster Broadcaster, uploadsDir string, maxUpload int64) *CollectionService {
	return &CollectionService{
		repo:        repo,
		broadcaster: broadcaster,
		uploadsDir:  uploadsDir,
		maxUpload:   maxUpload,
		now:         time.Now,
	}
}

// Create validates and stores a submitted record. A record whose client ref
// was already stored is not stored again; the existing record is returned
// with created=false.
func (s *CollectionService) Create(ctx context.Context, rec *domain.CollectionRecord) (*domain.CollectionRecord, bool, error) {
	if err := domain.Validate(rec); err != nil {
		return nil, false, err
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	if rec.ClientRef != "" {
		existing, err := s.repo.FindByClientRef(ctx, rec.ClientRef)
		if err == nil {
			log.Printf("duplicate submission for client ref %s, returning %s", rec.ClientRef, existing.ID)
			return existing, false, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, false, err
		}
	}

	stored := *rec
	stored.ID = uuid.New().String()
	stored.LocalID = 0
	stored.IsDraft = false
	stored.Synced = true
	stored.Timestamp = s.now()
	stored.Photo = nil

	var photoPath string
	if rec.HasPhoto() {
		url, path, err := s.savePhoto(rec.Photo)
		if err != nil {
			return nil, false, err
		}
		stored.PhotoURL = &url
		photoPath = path
	}

	if err := s.repo.Create(ctx, &stored); err != nil {
		if photoPath != "" {
			os.Remove(photoPath)
		}
		return nil, false, err
	}

	s.announce(&stored)
	return &stored, true, nil
}

func (s *CollectionService) List(ctx context.Context) ([]*domain.CollectionRecord, error) {
	records, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*domain.CollectionRecord{}
	}
	return records, nil
}

func (s *CollectionService) savePhoto(photo *domain.Photo) (url, path string, err error) {
	if s.maxUpload > 0 && int64(len(photo.Data)) > s.maxUpload {
		return "", "", ErrPhotoTooLarge
	}

	mtype := mimetype.Detect(photo.Data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", "", fmt.Errorf("%w: got %s", ErrInvalidPhoto, mtype.String())
	}

	if err := os.MkdirAll(s.uploadsDir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create uploads directory: %w", err)
	}

	name := uuid.New().String() + mtype.Extension()
	path = filepath.Join(s.uploadsDir, name)
	if err := os.WriteFile(path, photo.Data, 0o644); err != nil {
		return "", "", fmt.Errorf("failed to store photo: %w", err)
	}

	return UploadsURLPrefix + name, path, nil
}

func (s *CollectionService) announce(rec *domain.CollectionRecord) {
	if s.broadcaster == nil {
		return
	}

	msg, err := websocket.NewMessage(websocket.TypeCollectionCreated, &websocket.CollectionCreatedPayload{
		ID:          rec.ID,
		BatchID:     rec.BatchID,
		CollectorID: rec.CollectorID,
		SpeciesName: rec.SpeciesName,
	})
	if err != nil {
		log.Printf("failed to build collection event: %v", err)
		return
	}
	if err := s.broadcaster.Broadcast(msg); err != nil {
		log.Printf("failed to broadcast collection event: %v", err)
	}
}
