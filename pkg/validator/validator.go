package validator

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator"

	"eventhub/internal/model"
)

const (
	ErrInvalidFormat      = "Invalid format"
	ErrFieldRequired      = "Field is required"
	ErrFieldExceedsMaxLen = "Field exceeds maximum length"
	ErrFieldBelowMinLen   = "Field is below minimum length"
	ErrFieldExceedsMaxVal = "Field exceeds maximum value"
	ErrFieldBelowMinVal   = "Field is below minimum value"
	ErrUnknownValidation  = "Unknown validation error"
)

// rules are the project-specific tags on top of the library's built-ins.
var rules = map[string]validator.Func{
	"future":   isFuture,
	"positive": isPositive,
	"category": oneOf(model.CategoryTechnical, model.CategorySoftSkills),
	"priority": oneOf(model.PriorityLow, model.PriorityMedium, model.PriorityHigh, model.PriorityUrgent),
	"channel":  oneOf(model.NotificationEmail, model.NotificationSMS, model.NotificationInApp),
}

var messages = map[string]string{
	"email":    ErrInvalidFormat,
	"uuid":     ErrInvalidFormat,
	"required": ErrFieldRequired,
	"max":      ErrFieldExceedsMaxLen,
	"min":      ErrFieldBelowMinLen,
	"lt":       ErrFieldExceedsMaxVal,
	"lte":      ErrFieldExceedsMaxVal,
	"gt":       ErrFieldBelowMinVal,
	"gte":      ErrFieldBelowMinVal,
	"future":   "Date must be in the future",
	"positive": "Value must be positive",
}

var shared = New()

// New returns a validator with every project rule registered.
func New() *validator.Validate {
	v := validator.New()
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic("validator: register " + tag + ": " + err.Error())
		}
	}
	return v
}

// Validate reports the first failing field of structure as a readable error,
// or nil.
func Validate(ctx context.Context, structure any) error {
	err := shared.StructCtx(ctx, structure)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return nil
	}
	fe := fieldErrs[0]
	return errors.New(describe(fe) + ": " + fe.Namespace())
}

func describe(fe validator.FieldError) string {
	if msg, ok := messages[fe.Tag()]; ok {
		return msg
	}
	switch fe.Tag() {
	case "category", "priority", "channel":
		return "Unsupported " + fe.Tag()
	case "gtfield":
		return "Field must be after " + fe.Param()
	}
	return ErrUnknownValidation
}

func isFuture(fl validator.FieldLevel) bool {
	t, ok := fl.Field().Interface().(time.Time)
	return ok && t.After(time.Now())
}

func isPositive(fl validator.FieldLevel) bool {
	n, ok := fl.Field().Interface().(int)
	return ok && n > 0
}

func oneOf(allowed ...string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		for _, a := range allowed {
			if s == a {
				return true
			}
		}
		return false
	}
}
