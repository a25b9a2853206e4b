package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "mutuelle/pkg/domain-errors"
)

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "internal", body.Error)
		assert.Empty(t, body.Description)
	})

	t.Run("invalid input includes description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "amount must be positive"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "invalid_input", body.Error)
		assert.Equal(t, "amount must be positive", body.Description)
	})

	t.Run("quota and subscription failures stay distinguishable", func(t *testing.T) {
		quota := httptest.NewRecorder()
		WriteError(quota, dErrors.New(dErrors.CodeQuotaExhausted, "x"))
		inactive := httptest.NewRecorder()
		WriteError(inactive, dErrors.New(dErrors.CodeSubscriptionInactive, "x"))

		assert.Equal(t, quota.Code, inactive.Code)
		q, i := decodeBody(t, quota), decodeBody(t, inactive)
		assert.NotEqual(t, q.Error, i.Error)
		assert.NotEqual(t, q.Message, i.Message)
	})

	t.Run("uncoded error is internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, assert.AnError)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("reader error and busy", func(t *testing.T) {
		assert.Equal(t, http.StatusUnprocessableEntity, StatusFor(dErrors.CodeReaderError))
		assert.Equal(t, http.StatusServiceUnavailable, StatusFor(dErrors.CodeBusy))
		assert.Equal(t, http.StatusNotFound, StatusFor(dErrors.CodeMemberNotFound))
	})
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	t.Run("valid body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Awa"}`))
		var p payload
		require.NoError(t, DecodeJSON(r, &p))
		assert.Equal(t, "Awa", p.Name)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Awa","admin":true}`))
		var p payload
		err := DecodeJSON(r, &p)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("trailing data rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Awa"}{"name":"Bio"}`))
		var p payload
		err := DecodeJSON(r, &p)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}
