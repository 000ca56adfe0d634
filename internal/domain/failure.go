package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// ErrorTypeValidation tags failures produced by per-record validation.
const ErrorTypeValidation = "ValidationError"

// IngestionFailure is one rejected input item kept for forensic replay.
type IngestionFailure struct {
	ID           uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID        string         `gorm:"type:text;not null;uniqueIndex:idx_ingestion_failures_job_index,priority:1;index:idx_ingestion_failures_job_type,priority:1" json:"-"`
	RecordIndex  int            `gorm:"not null;uniqueIndex:idx_ingestion_failures_job_index,priority:2" json:"record_index"`
	ErrorType    string         `gorm:"type:varchar(100);not null;index:idx_ingestion_failures_job_type,priority:2" json:"error_type"`
	ErrorMessage string         `gorm:"type:text;not null" json:"error_message"`
	FieldErrors  datatypes.JSON `json:"field_errors"`
	RawData      datatypes.JSON `gorm:"not null" json:"raw_data"`
	CreatedAt    time.Time      `json:"created_at"`

	Job *IngestionJob `gorm:"foreignKey:JobID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the database table name for IngestionFailure.
func (IngestionFailure) TableName() string {
	return "ingestion_failures"
}

// NewValidationFailure builds a failure row for the record at index.
func NewValidationFailure(jobID string, index int, raw RawRecord, fields map[string][]string, message string) (*IngestionFailure, error) {
	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode raw record %d: %w", index, err)
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode field errors for record %d: %w", index, err)
	}
	return &IngestionFailure{
		JobID:        jobID,
		RecordIndex:  index,
		ErrorType:    ErrorTypeValidation,
		ErrorMessage: message,
		FieldErrors:  datatypes.JSON(fieldsJSON),
		RawData:      datatypes.JSON(rawJSON),
	}, nil
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
