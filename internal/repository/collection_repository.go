package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"herb-collector/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

var ErrNotFound = errors.New("collection not found")

const collectionDocType = "collection"

type CollectionRepository interface {
	Create(ctx context.Context, rec *domain.CollectionRecord) error
	FindByID(ctx context.Context, id string) (*domain.CollectionRecord, error)
	FindByClientRef(ctx context.Context, clientRef string) (*domain.CollectionRecord, error)
	List(ctx context.Context) ([]*domain.CollectionRecord, error)
}

type collectionDoc struct {
	Type string `json:"type"`
	domain.CollectionRecord
}

type collectionRepository struct {
	client *kivik.Client
	dbName string
}

func NewCollectionRepository(client *kivik.Client, dbName string) CollectionRepository {
	return &collectionRepository{
		client: client,
		dbName: dbName,
	}
}

func (r *collectionRepository) Create(ctx context.Context, rec *domain.CollectionRecord) error {
	db := r.client.DB(r.dbName)

	docID := fmt.Sprintf("collection:%s", rec.ID)
	_, err := db.Put(ctx, docID, &collectionDoc{Type: collectionDocType, CollectionRecord: *rec})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

func (r *collectionRepository) FindByID(ctx context.Context, id string) (*domain.CollectionRecord, error) {
	db := r.client.DB(r.dbName)

	docID := fmt.Sprintf("collection:%s", id)
	row := db.Get(ctx, docID)

	var doc collectionDoc
	if err := row.ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find collection: %w", err)
	}

	return &doc.CollectionRecord, nil
}

func (r *collectionRepository) FindByClientRef(ctx context.Context, clientRef string) (*domain.CollectionRecord, error) {
	db := r.client.DB(r.dbName)

	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"type":      collectionDocType,
			"clientRef": clientRef,
		},
		"limit": 1,
	}

	rows := db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to find collection by client ref: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ErrNotFound
	}

	var doc collectionDoc
	if err := rows.ScanDoc(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode collection: %w", err)
	}
	return &doc.CollectionRecord, nil
}

func (r *collectionRepository) List(ctx context.Context) ([]*domain.CollectionRecord, error) {
	db := r.client.DB(r.dbName)

	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"type": collectionDocType,
		},
	}

	rows := db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var records []*domain.CollectionRecord
	for rows.Next() {
		var doc collectionDoc
		if err := rows.ScanDoc(&doc); err != nil {
			continue
		}
		rec := doc.CollectionRecord
		records = append(records, &rec)
	}

	sortNewestFirst(records)
	return records, nil
}

func sortNewestFirst(records []*domain.CollectionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
}
