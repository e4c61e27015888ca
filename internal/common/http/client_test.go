package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_GetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("nope"))
			return
		}
		_, _ = w.Write([]byte(`{"status":"OK"}`))
	}))
	defer srv.Close()

	c := NewClient(time.Second, 0)

	var out struct {
		Status string `json:"status"`
	}
	require.NoError(t, c.GetJSON(context.Background(), srv.URL+"/ok", &out))
	assert.Equal(t, "OK", out.Status)

	err := c.GetJSON(context.Background(), srv.URL+"/missing", &out)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, "nope", statusErr.Body)
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(time.Second, 0.001)
	var out map[string]interface{}
	require.NoError(t, c.GetJSON(context.Background(), srv.URL, &out))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.GetJSON(ctx, srv.URL, &out)
	assert.Error(t, err)
}
