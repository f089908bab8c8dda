package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Text field length limits, shared with the frontend through /api/limits.
const (
	MaxNameLength         = 100
	MaxEmailLength        = 254
	MaxPasswordLength     = 72
	MinPasswordLength     = 8
	MaxCaptionLength      = 2200
	MaxCommentBodyLength  = 1000
	MaxRecipeTitleLength  = 150
	MaxDescriptionLength  = 2000
	MaxIngredientLength   = 200
	MaxStepLength         = 1000
	MaxReviewLength       = 1000
	MaxRestaurantNameLen  = 120
	MaxAddressLength      = 300
	MaxBranches           = 10
	MaxSearchQueryLength  = 100
	MaxOpeningHoursLength = 200
)

var (
	instance *validator.Validate
	once     sync.Once
)

func get() *validator.Validate {
	once.Do(func() {
		instance = validator.New(validator.WithRequiredStructEnabled())
		instance.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return instance
}

// Struct checks the shape of a request body and returns a message suitable for
// the client, or "" when the value is acceptable. Business rules are left to
// the backend.
func Struct(v any) string {
	err := get().Struct(v)
	if err == nil {
		return ""
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	return message(verrs[0])
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must have at most %s items", field, fe.Param())
		}
		return fmt.Sprintf("%s must be %s characters or fewer", field, fe.Param())
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must have at least %s items", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "gte", "lte":
		return fmt.Sprintf("%s is out of range", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "e164":
		return fmt.Sprintf("%s must be a phone number in international format", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// FieldLimits returns field names mapped to max lengths for the /api/limits endpoint.
func FieldLimits() map[string]int {
	return map[string]int{
		"name":           MaxNameLength,
		"password":       MaxPasswordLength,
		"caption":        MaxCaptionLength,
		"commentBody":    MaxCommentBodyLength,
		"recipeTitle":    MaxRecipeTitleLength,
		"description":    MaxDescriptionLength,
		"ingredient":     MaxIngredientLength,
		"step":           MaxStepLength,
		"review":         MaxReviewLength,
		"restaurantName": MaxRestaurantNameLen,
		"address":        MaxAddressLength,
		"branches":       MaxBranches,
		"openingHours":   MaxOpeningHoursLength,
	}
}
