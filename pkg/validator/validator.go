package validator

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Register adds the custom tags used by request DTOs to gin's validator.
func Register() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}
	return v.RegisterValidation("timezone", validateTimezone)
}

func validateTimezone(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == "" {
		return true
	}
	_, err := time.LoadLocation(name)
	return err == nil
}

func FormatValidationError(err error) string {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		var messages []string
		for _, fieldError := range validationErrors {
			message := getFieldErrorMessage(fieldError)
			messages = append(messages, message)
		}
		return strings.Join(messages, "; ")
	}
	return err.Error()
}

func getFieldErrorMessage(fe validator.FieldError) string {
	field := getFieldName(fe.Field())

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "uuid":
		return fmt.Sprintf("%s must be a valid UUID", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "timezone":
		return fmt.Sprintf("%s must be an IANA time zone name", field)
	case "min":
		if fe.Type().String() == "string" {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Type().String() == "string" {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "required_without":
		return fmt.Sprintf("%s is required when %s is not provided", field, getFieldName(fe.Param()))
	case "gtefield":
		return fmt.Sprintf("%s must not be before %s", field, getFieldName(fe.Param()))
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func getFieldName(field string) string {
	fieldNames := map[string]string{
		"Name":               "Name",
		"StartDate":          "Start date",
		"EndDate":            "End date",
		"Timezone":           "Timezone",
		"AggregationMethod":  "Aggregation method",
		"ScoringFrequency":   "Scoring frequency",
		"ComparisonType":     "Comparison type",
		"PointsPerUnit":      "Points per unit",
		"MaxPointsPerPeriod": "Max points per period",
		"MaxPointsTotal":     "Max points total",
		"ParticipantID":      "Participant ID",
		"MetricID":           "Metric ID",
		"QualifierID":        "Qualifier ID",
		"UserID":             "User ID",
		"DisplayName":        "Display name",
		"Email":              "Email",
		"Value":              "Value",
		"Date":               "Date",
	}

	if name, ok := fieldNames[field]; ok {
		return name
	}
	return field
}
