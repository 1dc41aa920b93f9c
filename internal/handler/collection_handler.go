package handler

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"herb-collector/internal/domain"
	"herb-collector/internal/service"
	"herb-collector/pkg/response"
)

const (
	idempotencyHeader = "Idempotency-Key"
	photoField        = "photo"

	// room for the text fields on top of the photo limit
	formOverhead = 1 << 20
)

type CollectionHandler struct {
	service   *service.CollectionService
	maxUpload int64
}

func NewCollectionHandler(service *service.CollectionService, maxUpload int64) *CollectionHandler {
	return &CollectionHandler{
		service:   service,
		maxUpload: maxUpload,
	}
}

func (h *CollectionHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.List(r.Context())
	if err != nil {
		response.InternalError(w, "Failed to fetch collections")
		return
	}

	response.Success(w, records)
}

func (h *CollectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+formOverhead)
	}

	rec, fieldErrs, err := h.decode(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.TooLarge(w, "Upload too large")
			return
		}
		response.BadRequest(w, "Invalid request payload")
		return
	}
	if len(fieldErrs) > 0 {
		response.Invalid(w, fieldErrs)
		return
	}

	if rec.ClientRef == "" {
		rec.ClientRef = r.Header.Get(idempotencyHeader)
	}

	stored, created, err := h.service.Create(r.Context(), rec)
	if err != nil {
		var ve *domain.ValidationError
		switch {
		case errors.As(err, &ve):
			response.Invalid(w, ve.Errors)
		case errors.Is(err, service.ErrInvalidPhoto):
			response.Invalid(w, []domain.FieldError{{Field: photoField, Message: "only image files are allowed"}})
		case errors.Is(err, service.ErrPhotoTooLarge):
			response.TooLarge(w, "Photo too large")
		default:
			response.InternalError(w, "Failed to create collection")
		}
		return
	}

	if !created {
		response.Success(w, stored)
		return
	}
	response.Created(w, stored)
}

func (h *CollectionHandler) decode(r *http.Request) (*domain.CollectionRecord, []domain.FieldError, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var rec domain.CollectionRecord
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			return nil, nil, err
		}
		return &rec, nil, nil
	}

	if err := r.ParseMultipartForm(formOverhead); err != nil {
		if !errors.Is(err, http.ErrNotMultipart) {
			return nil, nil, err
		}
		if err := r.ParseForm(); err != nil {
			return nil, nil, err
		}
	}

	f := formReader{r: r}
	rec := &domain.CollectionRecord{
		BatchID:         strings.TrimSpace(r.FormValue("batchId")),
		CollectorID:     strings.TrimSpace(r.FormValue("collectorId")),
		SpeciesName:     strings.TrimSpace(r.FormValue("speciesName")),
		QualityGrade:    domain.QualityGrade(r.FormValue("qualityGrade")),
		ClientRef:       r.FormValue("clientRef"),
		Latitude:        f.float("latitude"),
		Longitude:       f.float("longitude"),
		Weight:          f.float("weight"),
		Accuracy:        f.optionalFloat("accuracy"),
		MoistureContent: f.optionalFloat("moistureContent"),
		Notes:           optionalString(r.FormValue("notes")),
		PhotoURL:        optionalString(r.FormValue("photoUrl")),
	}

	photo, err := readPhoto(r)
	if err != nil {
		return nil, nil, err
	}
	rec.Photo = photo

	return rec, f.errs, nil
}

type formReader struct {
	r    *http.Request
	errs []domain.FieldError
}

func (f *formReader) float(name string) float64 {
	v := f.optionalFloat(name)
	if v == nil {
		return 0
	}
	return *v
}

func (f *formReader) optionalFloat(name string) *float64 {
	raw := strings.TrimSpace(f.r.FormValue(name))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		f.errs = append(f.errs, domain.FieldError{Field: name, Message: "must be a number"})
		return nil
	}
	return &v
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func readPhoto(r *http.Request) (*domain.Photo, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}

	file, header, err := r.FormFile(photoField)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	return &domain.Photo{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
