package validator

import (
	"regexp"

	"github.com/go-playground/validator/v10"

	apperrors "clubsync/pkg/errors"
)

// clockPattern accepts 24-hour HH:MM wall times, the format the external
// scheduler reports slot boundaries in.
var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Registration only fails for an empty tag name.
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		return clockPattern.MatchString(fl.Field().String())
	})

	return v
}

// ValidateStruct maps validator failures onto a field-keyed validation error.
func ValidateStruct(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperrors.Internal("Validation failed", err)
	}

	details := make(map[string]any, len(validationErrors))
	for _, fieldErr := range validationErrors {
		details[fieldErr.Field()] = describeFailure(fieldErr)
	}

	return apperrors.Validation("Request validation failed", details)
}

func describeFailure(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return "is required"
	case "clock":
		return "must be a 24-hour HH:MM time"
	case "email":
		return "must be a valid email address"
	case "min":
		return "is below the minimum of " + fieldErr.Param()
	case "max":
		return "is above the maximum of " + fieldErr.Param()
	case "mongodb":
		return "must be a valid object id"
	default:
		return "failed " + fieldErr.Tag() + " validation"
	}
}
