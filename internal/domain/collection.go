package domain

import "time"

type QualityGrade string

const (
	QualityPremium    QualityGrade = "premium"
	QualityStandard   QualityGrade = "standard"
	QualityCommercial QualityGrade = "commercial"
	QualityLow        QualityGrade = "low"
)

func (g QualityGrade) Valid() bool {
	switch g {
	case QualityPremium, QualityStandard, QualityCommercial, QualityLow:
		return true
	}
	return false
}

// Photo is a captured image kept locally until the record is submitted.
type Photo struct {
	Filename    string
	ContentType string
	Data        []byte
}

// CollectionRecord is a single harvest observation. ID is assigned by the
// server, LocalID by the local store; the two never share a namespace.
type CollectionRecord struct {
	ID        string `json:"id,omitempty"`
	LocalID   int64  `json:"-"`
	ClientRef string `json:"clientRef,omitempty"`

	BatchID     string `json:"batchId" validate:"required"`
	CollectorID string `json:"collectorId" validate:"required"`
	SpeciesName string `json:"speciesName" validate:"required"`

	Latitude  float64  `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64  `json:"longitude" validate:"gte=-180,lte=180"`
	Accuracy  *float64 `json:"accuracy,omitempty" validate:"omitempty,gte=0"`

	QualityGrade    QualityGrade `json:"qualityGrade" validate:"required,oneof=premium standard commercial low"`
	MoistureContent *float64     `json:"moistureContent,omitempty" validate:"omitempty,gte=0,lte=100"`
	Weight          float64      `json:"weight" validate:"gte=0"`
	Notes           *string      `json:"notes,omitempty"`

	PhotoURL *string `json:"photoUrl,omitempty"`
	Photo    *Photo  `json:"-"`

	Timestamp time.Time `json:"timestamp"`
	Synced    bool      `json:"synced"`
	IsDraft   bool      `json:"-"`
}

// RecordKey identifies the same logical observation across the local and
// server namespaces.
type RecordKey struct {
	BatchID     string
	CollectorID string
	SpeciesName string
}

func (r *CollectionRecord) Key() RecordKey {
	return RecordKey{
		BatchID:     r.BatchID,
		CollectorID: r.CollectorID,
		SpeciesName: r.SpeciesName,
	}
}

func (r *CollectionRecord) HasPhoto() bool {
	return r.Photo != nil && len(r.Photo.Data) > 0
}
