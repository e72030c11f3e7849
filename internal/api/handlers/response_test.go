package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Harshitk-cp/concord/internal/domain"
	"github.com/Harshitk-cp/concord/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"validation", domain.NewValidationError("competence", "must be within [0,1]"), http.StatusBadRequest, "invalid competence: must be within [0,1]"},
		{"permission", service.ErrNotCommitter, http.StatusForbidden, service.ErrNotCommitter.Error()},
		{"not found", service.ErrCommitmentNotFound, http.StatusNotFound, service.ErrCommitmentNotFound.Error()},
		{"conflict", service.ErrDuplicateDispute, http.StatusConflict, service.ErrDuplicateDispute.Error()},
		{"expired", service.ErrAppealWindowClosed, http.StatusGone, service.ErrAppealWindowClosed.Error()},
		{"wrapped", fmt.Errorf("filing: %w", service.ErrQualityTooLow), http.StatusForbidden, "filing: " + service.ErrQualityTooLow.Error()},
		{"infrastructure", errors.New("connection reset by peer"), http.StatusInternalServerError, "failed to do the thing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, tt.err, "failed to do the thing")
			assert.Equal(t, tt.wantStatus, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantMsg, body["error"])
		})
	}
}

func TestWriteServiceError_ValidationField(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, service.ErrInsufficientStake, "x")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "amount", body["field"])
}

func TestQueryDomain(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/v1/trust/edges", nil)
	assert.Nil(t, queryDomain(r))

	r = httptest.NewRequest(http.MethodGet, "/v1/trust/edges?domain=", nil)
	require.NotNil(t, queryDomain(r))
	assert.Equal(t, "", *queryDomain(r))

	r = httptest.NewRequest(http.MethodGet, "/v1/trust/edges?domain=medicine", nil)
	assert.Equal(t, "medicine", *queryDomain(r))
}
