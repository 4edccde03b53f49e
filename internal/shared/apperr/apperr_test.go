package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"not found", NotFound("slot %s", "x"), http.StatusNotFound},
		{"conflict", Conflict("serial taken"), http.StatusConflict},
		{"invalid state", InvalidState("swap is completed"), http.StatusUnprocessableEntity},
		{"unavailable", Unavailable("no empty slot"), http.StatusServiceUnavailable},
		{"race lost", RaceLost("slot changed"), http.StatusServiceUnavailable},
		{"unexpected", Unexpected(errors.New("db down"), "load slot"), http.StatusInternalServerError},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatus(tc.err))
		})
	}
}

func TestWrappedKindsSurviveFurtherWrapping(t *testing.T) {
	err := fmt.Errorf("initiate swap: %w", Conflict("slot %d occupied", 3))

	assert.True(t, Is(err, ErrConflict))
	assert.False(t, Is(err, ErrNotFound))
	assert.Equal(t, "conflict", Kind(err))
	assert.Contains(t, err.Error(), "slot 3 occupied")
}

func TestUnexpectedKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Unexpected(cause, "update slot")

	assert.True(t, errors.Is(err, ErrUnexpected))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "unexpected", Kind(err))
}
