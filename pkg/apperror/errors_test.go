package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapErrorToStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("mark read: %w", ErrNotFound), http.StatusNotFound},
		{"forbidden", ErrForbidden, http.StatusForbidden},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized},
		{"bad request", ErrBadRequest, http.StatusBadRequest},
		{"decode", fmt.Errorf("wrap: %w", ErrDecode), http.StatusBadRequest},
		{"app error code wins", New(http.StatusConflict, "conflict", ErrNotFound), http.StatusConflict},
		{"unknown", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MapErrorToStatus(tc.err))
		})
	}
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(fmt.Errorf("x: %w", ErrDecode)))
	assert.True(t, IsPermanent(ErrValidation))
	assert.False(t, IsPermanent(errors.New("connection refused")))
	assert.False(t, IsPermanent(ErrNotFound))
}

func TestAppError_Unwrap(t *testing.T) {
	err := New(http.StatusForbidden, "nope", ErrForbidden)
	assert.True(t, errors.Is(err, ErrForbidden))
	assert.Equal(t, ErrForbidden.Error(), err.Error())
	assert.Equal(t, "plain", New(http.StatusTeapot, "plain", nil).Error())
}
