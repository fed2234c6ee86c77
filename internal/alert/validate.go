package alert

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"jobmate/alert-service/internal/model"
)

const (
	maxNameLen     = 100
	maxKeywordLen  = 50
	maxLocationLen = 100
)

// Allowed values for the enumerated criteria fields.
var (
	JobTypes         = []string{"Full-time", "Part-time", "Remote", "Freelance", "Contract", "Internship"}
	ExperienceLevels = []string{"Intern", "Fresher", "Junior", "Senior", "Director"}
	Currencies       = []string{"VND", "USD", "EUR"}
)

// criteriaRules is the validator view of model.Criteria.
type criteriaRules struct {
	OwnerID          string   `json:"ownerId" validate:"required"`
	Name             string   `json:"name" validate:"required,max=100"`
	Keywords         []string `json:"keywords" validate:"min=1,dive,required,max=50"`
	Locations        []string `json:"locations" validate:"min=1,dive,required,max=100"`
	Industries       []string `json:"industries" validate:"dive,required,max=100"`
	JobTypes         []string `json:"jobTypes" validate:"dive,oneof=Full-time Part-time Remote Freelance Contract Internship"`
	ExperienceLevels []string `json:"experienceLevels" validate:"dive,oneof=Intern Fresher Junior Senior Director"`
	Cadence          string   `json:"cadence" validate:"oneof=instant daily weekly"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks every invariant a stored alert must satisfy.
func Validate(c *model.Criteria) error {
	return check(c, validatorInstance().Struct(rulesOf(c)))
}

// validateMatchable checks only what the compiler depends on: the search
// terms, the enumerations and the salary range.
func validateMatchable(c *model.Criteria) error {
	return check(c, validatorInstance().StructExcept(rulesOf(c), "OwnerID", "Name", "Cadence"))
}

func rulesOf(c *model.Criteria) criteriaRules {
	return criteriaRules{
		OwnerID:          c.OwnerID,
		Name:             c.Name,
		Keywords:         c.Keywords,
		Locations:        c.Locations,
		Industries:       c.Industries,
		JobTypes:         c.JobTypes,
		ExperienceLevels: c.ExperienceLevels,
		Cadence:          string(c.Cadence),
	}
}

func check(c *model.Criteria, err error) error {
	var fields []FieldError
	if err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate criteria: %w", err)
		}
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: fe.Field(), Message: messageFor(fe)})
		}
	}
	fields = append(fields, checkSalary(c.Salary)...)
	if len(fields) == 0 {
		return nil
	}
	return newValidationError(fields)
}

func checkSalary(s *model.SalaryRange) []FieldError {
	if s == nil {
		return nil
	}
	var fields []FieldError
	if s.Min != nil && *s.Min < 0 {
		fields = append(fields, FieldError{Field: "salaryRange.min", Message: "minimum salary cannot be negative"})
	}
	if s.Max != nil && *s.Max < 0 {
		fields = append(fields, FieldError{Field: "salaryRange.max", Message: "maximum salary cannot be negative"})
	}
	if s.Min != nil && s.Max != nil && *s.Min > *s.Max {
		fields = append(fields, FieldError{Field: "salaryRange", Message: "minimum salary cannot be greater than maximum salary"})
	}
	if !s.IsZero() && s.Currency != "" && !contains(Currencies, s.Currency) {
		fields = append(fields, FieldError{
			Field:   "salaryRange.currency",
			Message: fmt.Sprintf("currency must be one of: %s", strings.Join(Currencies, ", ")),
		})
	}
	return fields
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min":
		switch fe.Field() {
		case "keywords":
			return "at least one keyword is required"
		case "locations":
			return "at least one location is required"
		}
		return fmt.Sprintf("%s requires at least %s item(s)", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s cannot exceed %s characters", fe.Field(), fe.Param())
	case "required":
		return fmt.Sprintf("%s must be a non-empty string", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	}
	return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
