package util

import (
	"errors"
	"net/http"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainError(t *testing.T) {
	assert.Nil(t, ToDomainError(nil))

	conflict := NewConflict("taken", nil)
	assert.Equal(t, http.StatusConflict, ToDomainError(conflict).HTTPStatus)

	fiberErr := ToDomainError(fiber.NewError(http.StatusForbidden, "insufficient role"))
	assert.Equal(t, "FORBIDDEN", fiberErr.Code)
	assert.Equal(t, "insufficient role", fiberErr.Message)

	cause := errors.New("db down")
	internal := ToDomainError(cause)
	assert.Equal(t, http.StatusInternalServerError, internal.HTTPStatus)
	assert.Equal(t, "internal server error", internal.Message)
	assert.ErrorIs(t, internal, cause)
}

func TestFromValidation(t *testing.T) {
	err := FromValidation(validation.Errors{
		"email":    errors.New("must be a valid email address"),
		"password": nil,
	})

	de := ToDomainError(err)
	require.NotNil(t, de)
	assert.Equal(t, "VALIDATION_FAILED", de.Code)
	assert.Equal(t, map[string]any{"email": "must be a valid email address"}, de.Details)
}
