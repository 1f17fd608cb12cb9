package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// recordValidate checks RecordInput against its struct tags. Field names in
// reported errors are the JSON wire names.
var recordValidate *validator.Validate

func init() {
	recordValidate = validator.New(validator.WithRequiredStructEnabled())
	recordValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// BodyField names violations that concern the request body as a whole.
const BodyField = "body"

// FieldError is one violated constraint.
type FieldError struct {
	Field      string `json:"field"`
	Constraint string `json:"constraint"`
	Value      any    `json:"value,omitempty"`
}

// ValidationError rejects a whole record. It lists every violated constraint in
// field declaration order.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fmt.Sprintf("%s: %s", fe.Field, fe.Constraint)
	}
	return "invalid record: " + strings.Join(parts, "; ")
}

// Field returns the first offending field.
func (e *ValidationError) Field() string {
	if len(e.Errors) == 0 {
		return ""
	}
	return e.Errors[0].Field
}

// Has reports whether field violated any constraint.
func (e *ValidationError) Has(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// ParseRecord decodes a JSON request body and validates it.
func ParseRecord(data []byte) (RawRecord, error) {
	var in RecordInput
	if err := json.Unmarshal(data, &in); err != nil {
		return RawRecord{}, decodeError(err)
	}
	return Validate(in)
}

// Validate checks every field of in and returns the typed record.
func Validate(in RecordInput) (RawRecord, error) {
	if err := recordValidate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return RawRecord{}, fmt.Errorf("validate record: %w", err)
		}
		out := &ValidationError{Errors: make([]FieldError, 0, len(verrs))}
		for _, fe := range verrs {
			out.Errors = append(out.Errors, fieldError(fe))
		}
		return RawRecord{}, out
	}

	return RawRecord{
		Gender:                  *in.Gender,
		Age:                     *in.Age,
		Height:                  *in.Height,
		Weight:                  *in.Weight,
		FamilyHistoryOverweight: *in.FamilyHistoryOverweight,
		FrequentHighCalorieFood: *in.FrequentHighCalorieFood,
		VegetableFrequency:      *in.VegetableFrequency,
		MainMealsCount:          *in.MainMealsCount,
		SnackingFrequency:       *in.SnackingFrequency,
		Smokes:                  *in.Smokes,
		WaterIntake:             *in.WaterIntake,
		MonitorsCalories:        *in.MonitorsCalories,
		PhysicalActivity:        *in.PhysicalActivity,
		TechUsageTime:           *in.TechUsageTime,
		AlcoholFrequency:        *in.AlcoholFrequency,
		TransportMode:           *in.TransportMode,
	}, nil
}

func fieldError(fe validator.FieldError) FieldError {
	constraint := fe.Tag()
	if fe.Param() != "" {
		constraint += "=" + fe.Param()
	}
	out := FieldError{Field: fe.Field(), Constraint: constraint}
	if fe.Tag() != "required" {
		out.Value = fe.Value()
	}
	return out
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return &ValidationError{Errors: []FieldError{{
			Field:      typeErr.Field,
			Constraint: "type=" + typeErr.Type.String(),
			Value:      typeErr.Value,
		}}}
	}
	return &ValidationError{Errors: []FieldError{{
		Field:      BodyField,
		Constraint: "json",
		Value:      err.Error(),
	}}}
}
