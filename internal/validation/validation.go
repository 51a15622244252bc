// Package validation provides input validation helpers and middleware for
// the gateway's HTTP surface.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxCorrelationIDLength caps caller-supplied correlation ids.
const MaxCorrelationIDLength = 128

var correlationIDRegex = regexp.MustCompile(`^[A-Za-z0-9._:\-]+$`)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidCorrelationID reports whether a caller-supplied id can be reused
// as-is. Anything else is replaced with a fresh id.
func IsValidCorrelationID(id string) bool {
	return len(id) > 0 && len(id) <= MaxCorrelationIDLength && correlationIDRegex.MatchString(id)
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	s = strings.ReplaceAll(s, "\x00", "")
	return s
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// AtLeastOne checks that at least one of the values is non-empty.
func AtLeastOne(field string, values ...string) func() *ValidationError {
	return func() *ValidationError {
		for _, v := range values {
			if strings.TrimSpace(v) != "" {
				return nil
			}
		}
		return &ValidationError{Field: field, Message: "is required"}
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}
