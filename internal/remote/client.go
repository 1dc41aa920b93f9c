// Package remote talks to the collection API server.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strconv"
	"strings"
	"time"

	"herb-collector/internal/domain"
)

const (
	collectionsPath = "/api/collections"
	collectionPath  = "/api/collection"

	IdempotencyHeader = "Idempotency-Key"
)

// ErrRejected marks a submission the server refused as malformed. Retrying
// the same payload will not help.
var ErrRejected = errors.New("submission rejected")

// StatusError is an unexpected server response, treated as transient.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server responded %d", e.StatusCode)
	}
	return fmt.Sprintf("server responded %d: %s", e.StatusCode, e.Message)
}

// IsTransient reports whether err may succeed on a later attempt.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrRejected) && !domain.IsValidationError(err)
}

type errorBody struct {
	Message string              `json:"message"`
	Errors  []domain.FieldError `json:"errors"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

// NewClient talks to the collection server at baseURL. A nil logger logs to
// stderr.
func NewClient(baseURL string, timeout time.Duration, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// List fetches every record the server holds, newest first.
func (c *Client) List(ctx context.Context) ([]domain.CollectionRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+collectionsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build list request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var records []domain.CollectionRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode collections: %w", err)
	}
	return records, nil
}

// Submit sends one record as a multipart form and returns the record the
// server stored. The local id, sync flag and draft flag are never sent.
func (c *Client) Submit(ctx context.Context, rec *domain.CollectionRecord) (*domain.CollectionRecord, error) {
	body, contentType, err := encodeRecord(rec)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+collectionPath, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build submit request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if rec.ClientRef != "" {
		req.Header.Set(IdempotencyHeader, rec.ClientRef)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to submit collection: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var created domain.CollectionRecord
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("failed to decode created collection: %w", err)
	}
	return &created, nil
}

func encodeRecord(rec *domain.CollectionRecord) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"batchId", rec.BatchID},
		{"collectorId", rec.CollectorID},
		{"speciesName", rec.SpeciesName},
		{"latitude", formatFloat(rec.Latitude)},
		{"longitude", formatFloat(rec.Longitude)},
		{"qualityGrade", string(rec.QualityGrade)},
		{"weight", formatFloat(rec.Weight)},
	}
	if rec.Accuracy != nil {
		fields = append(fields, [2]string{"accuracy", formatFloat(*rec.Accuracy)})
	}
	if rec.MoistureContent != nil {
		fields = append(fields, [2]string{"moistureContent", formatFloat(*rec.MoistureContent)})
	}
	if rec.Notes != nil {
		fields = append(fields, [2]string{"notes", *rec.Notes})
	}
	if rec.PhotoURL != nil {
		fields = append(fields, [2]string{"photoUrl", *rec.PhotoURL})
	}
	if rec.ClientRef != "" {
		fields = append(fields, [2]string{"clientRef", rec.ClientRef})
	}

	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("failed to encode field %s: %w", f[0], err)
		}
	}

	if rec.HasPhoto() {
		filename := rec.Photo.Filename
		if filename == "" {
			filename = "photo"
		}
		contentType := rec.Photo.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="photo"; filename=%q`, filename))
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode photo: %w", err)
		}
		if _, err := part.Write(rec.Photo.Data); err != nil {
			return nil, "", fmt.Errorf("failed to encode photo: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to encode collection: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

func decodeError(resp *http.Response) error {
	var body errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err != nil {
		body.Message = strings.TrimSpace(string(raw))
	}

	if isRejection(resp.StatusCode) {
		ve := &domain.ValidationError{Errors: body.Errors}
		if len(ve.Errors) == 0 {
			msg := body.Message
			if msg == "" {
				msg = http.StatusText(resp.StatusCode)
			}
			ve.Errors = []domain.FieldError{{Field: "request", Message: msg}}
		}
		return fmt.Errorf("%w (status %d): %w", ErrRejected, resp.StatusCode, ve)
	}

	return &StatusError{StatusCode: resp.StatusCode, Message: body.Message}
}

func isRejection(code int) bool {
	if code < 400 || code >= 500 {
		return false
	}
	return code != http.StatusRequestTimeout && code != http.StatusTooManyRequests
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
