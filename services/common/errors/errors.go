package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error represents an application error carrying the HTTP status it maps to.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by status code, so errors.Is(err, ErrNotFound) works on any
// not-found error regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// JSON returns the error as a JSON string
func (e *Error) JSON() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// New creates a new Error
func New(code int, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Taxonomy shared by every service. DeliveryError never reaches an HTTP caller; it marks a
// failure on the event path that must be retried through redelivery.
var (
	ErrValidation  = New(http.StatusBadRequest, "Validation error", nil)
	ErrNotFound    = New(http.StatusNotFound, "Not found", nil)
	ErrConflict    = New(http.StatusConflict, "Conflict", nil)
	ErrDelivery    = New(http.StatusServiceUnavailable, "Delivery error", nil)
	ErrInternal    = New(http.StatusInternalServerError, "Internal server error", nil)
	ErrRateLimited = New(http.StatusTooManyRequests, "Rate limit exceeded", nil)
)

// Validation reports malformed, empty or non-positive input.
func Validation(format string, args ...any) *Error {
	return New(http.StatusBadRequest, fmt.Sprintf(format, args...), nil)
}

// NotFound reports a missing user, product or cart item.
func NotFound(format string, args ...any) *Error {
	return New(http.StatusNotFound, fmt.Sprintf(format, args...), nil)
}

// Conflict reports a uniqueness violation.
func Conflict(format string, args ...any) *Error {
	return New(http.StatusConflict, fmt.Sprintf(format, args...), nil)
}

// Delivery wraps a transient failure on the event path.
func Delivery(message string, err error) *Error {
	return New(http.StatusServiceUnavailable, message, err)
}

func IsValidation(err error) bool { return stderrors.Is(err, ErrValidation) }
func IsNotFound(err error) bool   { return stderrors.Is(err, ErrNotFound) }
func IsConflict(err error) bool   { return stderrors.Is(err, ErrConflict) }
func IsDelivery(err error) bool   { return stderrors.Is(err, ErrDelivery) }

// HTTPStatus maps any error to a status code; unknown errors are 500.
func HTTPStatus(err error) int {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}

// Respond writes err as {"error": message}. Internal errors never leak their cause.
func Respond(c *gin.Context, err error) {
	status := HTTPStatus(err)
	msg := ErrInternal.Message
	var appErr *Error
	if stderrors.As(err, &appErr) && status < http.StatusInternalServerError {
		msg = appErr.Message
	}
	c.JSON(status, gin.H{"error": msg})
}

// ErrorMiddleware renders the last error attached with c.Error.
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			Respond(c, c.Errors.Last().Err)
			c.Abort()
		}
	}
}
