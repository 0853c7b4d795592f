package controllers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/shopswift/commerce-backend/services/common/errors"
)

// RequestValidator decodes and validates request bodies.
type RequestValidator struct {
	validate *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestValidator{validate: v}
}

// BindJSON decodes the body into dst and runs the validate tags.
func (rv *RequestValidator) BindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return apperrors.Validation("invalid payload")
	}
	return rv.Struct(dst)
}

// Struct validates s and reports the first failing field.
func (rv *RequestValidator) Struct(s any) error {
	err := rv.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return apperrors.Validation("%s", describe(verrs[0]))
	}
	return apperrors.Validation("invalid payload")
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must not be empty", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
