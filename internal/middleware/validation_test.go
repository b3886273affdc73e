package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossmarket/internal/eventstudy"
)

type payload struct {
	Name   string                   `json:"name" validate:"required,ident"`
	Event  eventstudy.EventWindow   `json:"event"`
	Checks []eventstudy.VolumeCheck `json:"checks" validate:"dive"`
}

func validPayload() payload {
	start := time.Date(2025, 6, 2, 16, 0, 0, 0, time.UTC)
	return payload{
		Name:   "CL=F",
		Event:  eventstudy.EventWindow{Start: start, End: start.Add(time.Hour)},
		Checks: []eventstudy.VolumeCheck{{Asset: "XLE", Clock: "15:55"}},
	}
}

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Namespace()] = fe.Tag()
	}
	return out
}

func TestNewValidator(t *testing.T) {
	v := NewValidator()
	require.NoError(t, v.Struct(validPayload()))

	tests := []struct {
		name   string
		mutate func(p *payload)
		want   map[string]string
	}{
		{
			name:   "bad ident",
			mutate: func(p *payload) { p.Name = "../etc" },
			want:   map[string]string{"payload.name": "ident"},
		},
		{
			name:   "inverted window",
			mutate: func(p *payload) { p.Event.End = p.Event.Start.Add(-time.Minute) },
			want:   map[string]string{"payload.event.end": "gtfield"},
		},
		{
			name:   "missing start",
			mutate: func(p *payload) { p.Event = eventstudy.EventWindow{End: p.Event.End} },
			want:   map[string]string{"payload.event.start": "required"},
		},
		{
			name:   "bad clock",
			mutate: func(p *payload) { p.Checks[0].Clock = "25:00" },
			want:   map[string]string{"payload.checks[0].clock": "clock"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPayload()
			tt.mutate(&p)
			assert.Equal(t, tt.want, fieldErrors(t, v.Struct(p)))
		})
	}
}

func decodeHandler(vm *ValidationMiddleware, got *payload) http.Handler {
	return vm.LimitBody(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !vm.DecodeJSON(w, r, got) {
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestValidationMiddleware_DecodeJSON(t *testing.T) {
	vm := NewValidationMiddleware(nil, nil, 256)

	body, err := json.Marshal(validPayload())
	require.NoError(t, err)

	tests := []struct {
		name     string
		body     string
		status   int
		wantType string
	}{
		{"valid", string(body), http.StatusNoContent, ""},
		{"malformed", `{"name":`, http.StatusBadRequest, "/errors/validation"},
		{"unknown field", `{"name":"XLE","extra":1}`, http.StatusBadRequest, "/errors/validation"},
		{"invalid", `{"name":"","event":{}}`, http.StatusBadRequest, "/errors/validation"},
		{"too large", `{"name":"` + strings.Repeat("A", 400) + `"}`, http.StatusRequestEntityTooLarge, "/errors/payload-too-large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got payload
			rec := httptest.NewRecorder()
			decodeHandler(vm, &got).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body)))
			assert.Equal(t, tt.status, rec.Code)
			if tt.wantType == "" {
				assert.Equal(t, "CL=F", got.Name)
				return
			}
			var problem map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
			assert.Equal(t, tt.wantType, problem["type"])
		})
	}
}

func TestContentTypeValidator(t *testing.T) {
	h := ContentTypeValidator(nil, "application/json")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		method      string
		contentType string
		status      int
	}{
		{http.MethodGet, "", http.StatusNoContent},
		{http.MethodPost, "application/json; charset=utf-8", http.StatusNoContent},
		{http.MethodPost, "", http.StatusBadRequest},
		{http.MethodPost, "text/csv", http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, "/", strings.NewReader("{}"))
		if tt.contentType != "" {
			req.Header.Set("Content-Type", tt.contentType)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, tt.status, rec.Code, "%s %q", tt.method, tt.contentType)
	}
}

func TestQueryParamValidator_ValidateEnum(t *testing.T) {
	qv := NewQueryParamValidator(nil)
	allowed := []string{"json", "xlsx", "csv"}

	rec := httptest.NewRecorder()
	v, ok := qv.ValidateEnum(rec, httptest.NewRequest(http.MethodGet, "/?format=XLSX", nil), "format", allowed, "json")
	assert.True(t, ok)
	assert.Equal(t, "xlsx", v)

	v, ok = qv.ValidateEnum(rec, httptest.NewRequest(http.MethodGet, "/", nil), "format", allowed, "json")
	assert.True(t, ok)
	assert.Equal(t, "json", v)

	rec = httptest.NewRecorder()
	_, ok = qv.ValidateEnum(rec, httptest.NewRequest(http.MethodGet, "/?format=pdf", nil), "format", allowed, "json")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
