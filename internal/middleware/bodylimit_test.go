package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vyrodovalexey/avaroute/internal/observability"
)

func TestBodyLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		chunked    bool
		wantStatus int
		wantErr    bool
	}{
		{name: "within limit", body: "hello", wantStatus: http.StatusOK},
		{name: "declared too large", body: strings.Repeat("x", 20), wantStatus: http.StatusRequestEntityTooLarge},
		{name: "undeclared too large", body: strings.Repeat("x", 20), chunked: true, wantStatus: http.StatusOK, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var readErr error
			h := BodyLimit(10, observability.NopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, readErr = io.ReadAll(r.Body)
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if tt.chunked {
				req.ContentLength = -1
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantErr {
				var maxErr *http.MaxBytesError
				assert.True(t, errors.As(readErr, &maxErr))
			} else {
				assert.NoError(t, readErr)
			}
		})
	}
}

func TestBodyLimit_Disabled(t *testing.T) {
	t.Parallel()

	next := okHandler()
	h := BodyLimit(0, observability.NopLogger())(next)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 100)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
