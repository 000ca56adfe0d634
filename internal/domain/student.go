package domain

import (
	"strings"
	"time"
)

// RawRecord is one untyped input item as submitted by a client.
type RawRecord map[string]interface{}

// StudentID returns the natural key of the raw record, or "" when absent.
// Surrounding whitespace is dropped, as it is before the record is stored.
func (r RawRecord) StudentID() string {
	v, ok := r["student_id"]
	if !ok || v == nil {
		return ""
	}
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	default:
		return strings.TrimSpace(stringify(id))
	}
}

// StudentRecord is one validated and persisted enrollment record.
// StudentID is unique within its owning job.
type StudentRecord struct {
	ID          uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID       string     `gorm:"type:text;not null;uniqueIndex:idx_student_records_job_student,priority:1;index:idx_student_records_job_created,priority:1" json:"-"`
	StudentID   string     `gorm:"type:varchar(50);not null;uniqueIndex:idx_student_records_job_student,priority:2;index:idx_student_records_student_email,priority:1" json:"student_id"`
	FirstName   string     `gorm:"type:varchar(100);not null" json:"first_name"`
	LastName    string     `gorm:"type:varchar(100);not null" json:"last_name"`
	Email       string     `gorm:"type:varchar(255);not null;index:idx_student_records_student_email,priority:2" json:"email"`
	Phone       string     `gorm:"type:varchar(20)" json:"phone"`
	DateOfBirth *time.Time `gorm:"type:date" json:"date_of_birth,omitempty"`
	Grade       string     `gorm:"type:varchar(20);not null;index:idx_student_records_grade_section,priority:1" json:"grade"`
	Section     string     `gorm:"type:varchar(10);index:idx_student_records_grade_section,priority:2" json:"section"`
	RollNumber  string     `gorm:"type:varchar(50)" json:"roll_number"`
	Address     string     `gorm:"type:text" json:"address"`
	City        string     `gorm:"type:varchar(100)" json:"city"`
	State       string     `gorm:"type:varchar(100)" json:"state"`
	PostalCode  string     `gorm:"type:varchar(20)" json:"postal_code"`
	Country     string     `gorm:"type:varchar(100);default:India" json:"country"`
	CreatedAt   time.Time  `gorm:"index:idx_student_records_job_created,priority:2" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Job *IngestionJob `gorm:"foreignKey:JobID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the database table name for StudentRecord.
func (StudentRecord) TableName() string {
	return "student_records"
}
