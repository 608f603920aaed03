package escalation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFlagger(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/sessions/sess-1/flag", r.URL.Path)

		var req struct {
			Reason   string `json:"reason"`
			Level    string `json:"level"`
			Priority int    `json:"priority"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "crisis-case-opened:case-42", req.Reason)
		assert.Equal(t, "emergency", req.Level)
		assert.Equal(t, 1, req.Priority)

		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	f := NewHTTPFlagger(srv.URL, time.Second)
	require.NoError(t, f.Flag(context.Background(), "sess-1", "case-42", "emergency"))
}

func TestHTTPFlaggerServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewHTTPFlagger(srv.URL, time.Second)
	err := f.Flag(context.Background(), "sess-1", "case-42", "severe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
