// Package validator checks raw enrollment records and submitted batches.
package validator

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	playground "github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/timmy/rollcall/internal/domain"
)

const (
	dateLayout     = "2006-01-02"
	defaultCountry = "India"
)

// Grades is the allow-list of grade labels.
var Grades = []string{"Nursery", "LKG", "UKG", "1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12"}

// Validator turns one raw record into a normalized StudentRecord.
// Implementations must be safe for concurrent use.
type Validator interface {
	Validate(raw domain.RawRecord) (*domain.StudentRecord, error)
}

// studentInput mirrors the accepted wire fields of a student record.
type studentInput struct {
	StudentID   string `mapstructure:"student_id" validate:"required,max=50"`
	FirstName   string `mapstructure:"first_name" validate:"required,max=100"`
	LastName    string `mapstructure:"last_name" validate:"required,max=100"`
	Email       string `mapstructure:"email" validate:"required,max=255,email"`
	Phone       string `mapstructure:"phone" validate:"max=20"`
	DateOfBirth string `mapstructure:"date_of_birth" validate:"omitempty,datetime=2006-01-02,notfuture"`
	Grade       string `mapstructure:"grade" validate:"required,max=20,grade"`
	Section     string `mapstructure:"section" validate:"max=10"`
	RollNumber  string `mapstructure:"roll_number" validate:"max=50"`
	Address     string `mapstructure:"address"`
	City        string `mapstructure:"city" validate:"max=100"`
	State       string `mapstructure:"state" validate:"max=100"`
	PostalCode  string `mapstructure:"postal_code" validate:"max=20"`
	Country     string `mapstructure:"country" validate:"max=100"`
}

// StudentValidator validates student enrollment records.
type StudentValidator struct {
	validate *playground.Validate
	now      func() time.Time
}

// NewStudentValidator creates a validator. now may be nil, in which case time.Now is used.
func NewStudentValidator(now func() time.Time) *StudentValidator {
	if now == nil {
		now = time.Now
	}
	v := &StudentValidator{
		validate: playground.New(playground.WithRequiredStructEnabled()),
		now:      now,
	}

	v.validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("mapstructure")
	})
	// Registration only fails for empty tags or nil funcs.
	_ = v.validate.RegisterValidation("notfuture", v.notFuture)
	_ = v.validate.RegisterValidation("grade", isGrade)

	return v
}

// Validate implements Validator. A rejected record yields a *ValidationError.
func (v *StudentValidator) Validate(raw domain.RawRecord) (*domain.StudentRecord, error) {
	verr := &ValidationError{}

	clean := make(map[string]interface{}, len(raw))
	for key, val := range raw {
		switch val.(type) {
		case nil, string, bool, float64, float32, int, int32, int64, uint, uint32, uint64:
			clean[key] = val
		default:
			verr.add(key, "Not a valid string.")
		}
	}

	var in studentInput
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &in,
		WeaklyTypedInput: true,
		ZeroFields:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build record decoder: %w", err)
	}
	if err := decoder.Decode(clean); err != nil {
		verr.add("non_field_errors", err.Error())
		return nil, verr
	}

	in.normalize()

	if err := v.validate.Struct(&in); err != nil {
		fieldErrs, ok := err.(playground.ValidationErrors)
		if !ok {
			return nil, fmt.Errorf("failed to validate record: %w", err)
		}
		for _, fe := range fieldErrs {
			verr.add(fe.Field(), reason(fe))
		}
	}
	if !verr.empty() {
		return nil, verr
	}

	return in.toRecord(), nil
}

func (in *studentInput) normalize() {
	fields := []*string{
		&in.StudentID, &in.FirstName, &in.LastName, &in.Email, &in.Phone, &in.DateOfBirth,
		&in.Grade, &in.Section, &in.RollNumber, &in.Address, &in.City, &in.State,
		&in.PostalCode, &in.Country,
	}
	for _, f := range fields {
		*f = strings.TrimSpace(*f)
	}
	if in.Country == "" {
		in.Country = defaultCountry
	}
}

func (in *studentInput) toRecord() *domain.StudentRecord {
	rec := &domain.StudentRecord{
		StudentID:  in.StudentID,
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		Email:      in.Email,
		Phone:      in.Phone,
		Grade:      in.Grade,
		Section:    in.Section,
		RollNumber: in.RollNumber,
		Address:    in.Address,
		City:       in.City,
		State:      in.State,
		PostalCode: in.PostalCode,
		Country:    in.Country,
	}
	if in.DateOfBirth != "" {
		// Already checked by the datetime rule.
		if dob, err := time.Parse(dateLayout, in.DateOfBirth); err == nil {
			rec.DateOfBirth = &dob
		}
	}
	return rec
}

func (v *StudentValidator) notFuture(fl playground.FieldLevel) bool {
	dob, err := time.Parse(dateLayout, fl.Field().String())
	if err != nil {
		// Format problems are reported by the datetime rule.
		return true
	}
	now := v.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return !dob.After(today)
}

func isGrade(fl playground.FieldLevel) bool {
	value := fl.Field().String()
	for _, g := range Grades {
		if g == value {
			return true
		}
	}
	return false
}

func reason(fe playground.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "email":
		return "Enter a valid email address."
	case "grade":
		return "Invalid grade. Must be one of: " + strings.Join(Grades, ", ")
	case "datetime":
		return "Date has wrong format. Use one of these formats instead: YYYY-MM-DD."
	case "notfuture":
		return "Date of birth cannot be in the future"
	default:
		return fmt.Sprintf("Failed on the %q rule.", fe.Tag())
	}
}
