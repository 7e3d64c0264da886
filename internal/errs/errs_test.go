package errs_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tariffsim/tariff-engine/internal/errs"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", errs.Validation("Tariff rate cannot be negative"), http.StatusBadRequest},
		{"bad request", errs.BadRequest("Item already in cart"), http.StatusBadRequest},
		{"not found", errs.NotFound("Calculation not found in history"), http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("lookup: %w", errs.NotFound("missing")), http.StatusNotFound},
		{"data access", errs.DataAccess("load session", errors.New("connection refused")), http.StatusInternalServerError},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errs.HTTPStatus(tt.err))
		})
	}
}

func TestDataAccessKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := errs.DataAccess("fetch history", cause)

	var de *errs.DataAccessError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "fetch history", de.Op)
	assert.ErrorIs(t, err, cause)
	assert.False(t, errs.IsClientError(err))
}

func TestDataAccessPassesClientErrorsThrough(t *testing.T) {
	nf := errs.NotFound("gone")
	assert.Same(t, nf, errs.DataAccess("op", nf))
	assert.Nil(t, errs.DataAccess("op", nil))
	assert.True(t, errs.IsNotFound(nf))
}
