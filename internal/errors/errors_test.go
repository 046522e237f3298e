package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToHTTPError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", NewValidationError("organization_id", "Organization ID is required"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"duplicate", NewDuplicateError("client", ""), http.StatusConflict, "DUPLICATE"},
		{"not found", NewNotFoundError("Client"), http.StatusNotFound, "NOT_FOUND"},
		{"unauthorized", NewUnauthorizedError(""), http.StatusUnauthorized, "UNAUTHORIZED"},
		{"forbidden", NewPermissionDeniedError("edit", "tags"), http.StatusForbidden, "PERMISSION_DENIED"},
		{"upstream", NewUpstreamUnavailableError("login service", stderrors.New("dial tcp")), http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE"},
		{"internal", NewInternalError(stderrors.New("boom")), http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"wrapped", fmt.Errorf("loading: %w", NewNotFoundError("Tag")), http.StatusNotFound, "NOT_FOUND"},
		{"plain", stderrors.New("unexpected"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := ToHTTPError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, body["error"])
		})
	}
}

func TestInternalErrorUnwraps(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := NewInternalError(cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "internal server error", err.Error())
}

func TestDuplicateErrorDefaultMessage(t *testing.T) {
	assert.Equal(t, "tag already exists", NewDuplicateError("tag", "").Error())
	assert.Equal(t, "custom", NewDuplicateError("tag", "custom").Error())
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(fmt.Errorf("x: %w", NewNotFoundError("Client"))))
	assert.False(t, IsNotFound(NewValidationError("name", "required")))
}
