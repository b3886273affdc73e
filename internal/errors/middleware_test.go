package errors

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMiddleware_Handler(t *testing.T) {
	logger, logs := newTestLogger()
	h := NewErrorHandler(logger, false)
	m := NewErrorMiddleware(h, logger)

	t.Run("successful requests are not logged", func(t *testing.T) {
		logs.Reset()
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		rec := httptest.NewRecorder()
		m.Handler(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, logs.String())
	})

	t.Run("failed request logs a compact body", func(t *testing.T) {
		logs.Reset()
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		})
		body := "{\n  \"label\": \"strike\",\n  \"target\": \"\"\n}"
		rec := httptest.NewRecorder()
		m.Handler(next).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/analyses", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, logs.String(), "http request failed")
		assert.Contains(t, logs.String(), `{\"label\":\"strike\",\"target\":\"\"}`)
	})

	t.Run("panic becomes a problem response", func(t *testing.T) {
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		})
		rec := httptest.NewRecorder()
		m.Handler(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestBodyExcerpt(t *testing.T) {
	assert.Equal(t, `{"a":1}`, bodyExcerpt([]byte("{ \"a\" : 1 }")))
	long := strings.Repeat("x", maxLoggedBody+10)
	assert.Len(t, bodyExcerpt([]byte(long)), maxLoggedBody+3)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := NewErrorHandler(nil, false)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	rec := httptest.NewRecorder()
	RecoveryMiddleware(h)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), TypeInternal)
}
