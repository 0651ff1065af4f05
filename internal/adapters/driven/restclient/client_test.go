package restclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

func TestNew_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var out struct{ OK bool }
	resp, err := New(srv.URL, 5*time.Second).R().SetResult(&out).Get("/")

	require.NoError(t, Check("test", resp, err))
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNew_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad prompt"))
	}))
	defer srv.Close()

	resp, err := New(srv.URL, 5*time.Second).R().Post("/")
	err = Check("agent", resp, err)

	var ext *domain.ExternalError
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, "agent", ext.Service)
	assert.Equal(t, domain.ExternalUnavailable, ext.Kind)
	assert.Contains(t, err.Error(), "bad prompt")
	assert.Equal(t, int32(1), calls.Load())
}

func TestCheck_RateLimitIsQuota(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	resp, err := New(srv.URL, 5*time.Second).R().Get("/")
	err = Check("openai", resp, err)

	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, domain.ExternalQuota, domain.ClassifyExternal(err))
}

func TestCheck_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	resp, err := New(srv.URL, 5*time.Second).R().SetContext(ctx).Get("/")
	err = Check("ollama", resp, err)

	assert.Equal(t, domain.ExternalTimeout, domain.ClassifyExternal(err))
}

func TestNew_DecodesUnlabelledJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var out struct{ OK bool }
	resp, err := New(srv.URL, 5*time.Second).R().SetResult(&out).Get("/")

	require.NoError(t, Check("test", resp, err))
	assert.True(t, out.OK)
}

func TestNew_InvalidJSONIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>proxy error</html>`))
	}))
	defer srv.Close()

	var out struct{ OK bool }
	resp, err := New(srv.URL, 5*time.Second).R().SetResult(&out).Get("/")

	assert.Equal(t, domain.ExternalMalformed, domain.ClassifyExternal(Check("test", resp, err)))
}
