package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "rating-notifier", r.Header.Get("User-Agent"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"FAILED"}`))
	}))
	defer srv.Close()

	status, body, err := NewClientWith(srv.Client()).Get(context.Background(), srv.URL)

	require.NoError(t, err, "non-2xx must not be an error")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.JSONEq(t, `{"status":"FAILED"}`, string(body))
}

func TestClient_Get_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	_, _, err := NewClient(20*time.Millisecond).Get(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestClient_Get_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewClient(time.Second).Get(ctx, srv.URL)
	assert.ErrorIs(t, err, context.Canceled)
}
