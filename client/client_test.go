package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restkit/auth"
)

// newAPIServer stands up a test API with a working token endpoint and
// returns the mux for registering resource handlers, plus a mint counter.
func newAPIServer(t *testing.T) (*httptest.Server, *http.ServeMux, *int) {
	t.Helper()

	mints := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		mints++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-123",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, mux, &mints
}

func newTestClient(t *testing.T, baseURL string, settings Settings) *Client {
	t.Helper()

	c, err := New(Config{
		BaseURL:      baseURL,
		ClientID:     "id-1",
		ClientSecret: "secret-1",
		Settings:     settings,
	})
	require.NoError(t, err)
	return c
}

func shortenRetryDelay(t *testing.T) {
	t.Helper()
	old := retryDelay
	retryDelay = 10 * time.Millisecond
	t.Cleanup(func() { retryDelay = old })
}

func TestNew_EmptyBaseURL(t *testing.T) {
	_, err := New(Config{BaseURL: ""})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNew_CacheDir(t *testing.T) {
	t.Run("missing directory fails", func(t *testing.T) {
		_, err := New(Config{
			BaseURL:  "https://api.example.com",
			Settings: Settings{CachePath: filepath.Join(t.TempDir(), "nope")},
		})
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("valid directory succeeds", func(t *testing.T) {
		_, err := New(Config{
			BaseURL:  "https://api.example.com",
			Settings: Settings{CachePath: t.TempDir()},
		})
		assert.NoError(t, err)
	})
}

func TestGet_URLAndToken(t *testing.T) {
	server, mux, _ := newAPIServer(t)

	var gotQuery url.Values
	mux.HandleFunc("/users/info/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		gotQuery = r.URL.Query()
		w.Write([]byte("raw response body"))
	})

	c := newTestClient(t, server.URL, Settings{})
	resp, err := c.Get(context.Background(), "users/info/", url.Values{"userId": {"123456"}})
	require.NoError(t, err)

	assert.Equal(t, "raw response body", string(resp.Raw))
	assert.Nil(t, resp.Decoded)
	assert.Equal(t, "123456", gotQuery.Get("userId"))
	assert.Equal(t, "tok-123", gotQuery.Get("access_token"))
}

func TestGet_LeadingSlashStripped(t *testing.T) {
	server, mux, _ := newAPIServer(t)

	hit := false
	mux.HandleFunc("/users/info/", func(w http.ResponseWriter, r *http.Request) {
		hit = true
		w.Write([]byte("ok"))
	})

	c := newTestClient(t, server.URL+"/", Settings{})
	_, err := c.Get(context.Background(), "/users/info/", nil)
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestTokenReuseAcrossRequests(t *testing.T) {
	server, mux, mints := newAPIServer(t)
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})

	c := newTestClient(t, server.URL, Settings{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.Get(ctx, "ping", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, *mints, "token is minted once and reused")
}

func TestGrantFailureShortCircuits(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	})
	resourceHit := false
	mux.HandleFunc("/users/info/", func(w http.ResponseWriter, r *http.Request) {
		resourceHit = true
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := newTestClient(t, server.URL, Settings{})
	_, err := c.Get(context.Background(), "users/info/", nil)

	require.Error(t, err)
	assert.False(t, resourceHit, "no resource request after a failed grant")
	assert.ErrorIs(t, err, auth.ErrGrant)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Zero(t, apiErr.Code)

	payload, jerr := json.Marshal(apiErr)
	require.NoError(t, jerr)
	assert.Contains(t, string(payload), `"error":true`)
	assert.Contains(t, string(payload), `"error_code":0`)
}

func TestUnauthenticatedRequest(t *testing.T) {
	server, mux, mints := newAPIServer(t)

	var gotQuery url.Values
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte("up"))
	})

	c := newTestClient(t, server.URL, Settings{})
	_, err := c.Do(context.Background(), http.MethodGet, "status", nil, Body{}, false)
	require.NoError(t, err)

	assert.Zero(t, *mints, "no grant for unauthenticated calls")
	assert.Empty(t, gotQuery.Get("access_token"))
}

func TestRetryOn503(t *testing.T) {
	shortenRetryDelay(t)

	t.Run("single 503 is retried once", func(t *testing.T) {
		server, mux, _ := newAPIServer(t)

		hits := 0
		mux.HandleFunc("/flaky", func(w http.ResponseWriter, r *http.Request) {
			hits++
			if hits == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte("recovered"))
		})

		c := newTestClient(t, server.URL, Settings{})
		resp, err := c.Get(context.Background(), "flaky", nil)
		require.NoError(t, err)
		assert.Equal(t, "recovered", string(resp.Raw))
		assert.Equal(t, 2, hits)
	})

	t.Run("persistent 503 is not retried twice", func(t *testing.T) {
		server, mux, _ := newAPIServer(t)

		hits := 0
		mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) {
			hits++
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		c := newTestClient(t, server.URL, Settings{})
		_, err := c.Get(context.Background(), "down", nil)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusServiceUnavailable, apiErr.Code)
		assert.Equal(t, 2, hits)
	})

	t.Run("disabled retry surfaces the 503 immediately", func(t *testing.T) {
		server, mux, _ := newAPIServer(t)

		hits := 0
		mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) {
			hits++
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		c := newTestClient(t, server.URL, Settings{DisableRetryOn503: true})
		_, err := c.Get(context.Background(), "down", nil)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusServiceUnavailable, apiErr.Code)
		assert.Equal(t, 1, hits)
	})
}

func TestPost_ContentTypes(t *testing.T) {
	server, mux, _ := newAPIServer(t)

	var gotContentType, gotBody string
	mux.HandleFunc("/submit", func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.Write([]byte("ok"))
	})

	c := newTestClient(t, server.URL, Settings{})
	ctx := context.Background()

	tests := []struct {
		name            string
		body            Body
		wantContentType string
		wantBody        string
	}{
		{
			name:            "structured value",
			body:            JSON(map[string]string{"name": "n1"}),
			wantContentType: "application/json",
			wantBody:        `{"name":"n1"}`,
		},
		{
			name:            "raw string that is valid JSON",
			body:            Raw(`{"a":1}`),
			wantContentType: "application/json",
			wantBody:        `{"a":1}`,
		},
		{
			name:            "raw form string",
			body:            Raw("a=1&b=2"),
			wantContentType: "application/x-www-form-urlencoded",
			wantBody:        "a=1&b=2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Post(ctx, "submit", tt.body)
			require.NoError(t, err)
			assert.Equal(t, tt.wantContentType, gotContentType)
			assert.Equal(t, tt.wantBody, gotBody)
		})
	}

	t.Run("empty body has no content type", func(t *testing.T) {
		gotContentType = "sentinel"
		_, err := c.Post(ctx, "submit", Body{})
		require.NoError(t, err)
		assert.Empty(t, gotContentType)
	})
}

func TestGlobalParams(t *testing.T) {
	server, mux, _ := newAPIServer(t)

	var gotQuery url.Values
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte("pong"))
	})

	c := newTestClient(t, server.URL, Settings{})
	c.SetGlobalParam("locale", "en_US")
	c.SetGlobalParams(url.Values{"channel": {"mobile"}})

	_, err := c.Get(context.Background(), "ping", url.Values{"userId": {"7"}})
	require.NoError(t, err)

	assert.Equal(t, "en_US", gotQuery.Get("locale"))
	assert.Equal(t, "mobile", gotQuery.Get("channel"))
	assert.Equal(t, "7", gotQuery.Get("userId"))
}

func TestGlobalParamsReachTokenGrant(t *testing.T) {
	mux := http.NewServeMux()
	var grantForm url.Values
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		grantForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := newTestClient(t, server.URL, Settings{})
	c.SetGlobalParam("region", "eu")

	_, err := c.Get(context.Background(), "ping", nil)
	require.NoError(t, err)
	assert.Equal(t, "eu", grantForm.Get("region"))
}

func TestDecodeJSONSetting(t *testing.T) {
	server, mux, _ := newAPIServer(t)
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":42,"name":"n1"}`))
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	c := newTestClient(t, server.URL, Settings{DecodeJSON: true})
	ctx := context.Background()

	resp, err := c.Get(ctx, "user", nil)
	require.NoError(t, err)
	decoded, ok := resp.Decoded.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "n1", decoded["name"])

	resp, err = c.Get(ctx, "plain", nil)
	require.NoError(t, err)
	assert.Nil(t, resp.Decoded)
	assert.Equal(t, "not json", string(resp.Raw))
}

func TestGzipResponse(t *testing.T) {
	server, mux, _ := newAPIServer(t)
	mux.HandleFunc("/compressed", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		gz.Write([]byte(`{"big":"payload"}`))
		gz.Close()
	})

	c := newTestClient(t, server.URL, Settings{})
	resp, err := c.Get(context.Background(), "compressed", nil)
	require.NoError(t, err)
	assert.Equal(t, `{"big":"payload"}`, string(resp.Raw))
}

func TestErrorStatusBecomesAPIError(t *testing.T) {
	server, mux, _ := newAPIServer(t)
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such user", http.StatusNotFound)
	})

	c := newTestClient(t, server.URL, Settings{})
	_, err := c.Get(context.Background(), "missing", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Code)
	assert.Equal(t, "no such user", apiErr.Description)

	assert.Equal(t, ErrorPayload{
		Error:       true,
		Description: "no such user",
		Code:        http.StatusNotFound,
	}, apiErr.Payload())
}

func TestFileCacheSurvivesClientRestart(t *testing.T) {
	server, mux, mints := newAPIServer(t)
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})

	dir := t.TempDir()
	ctx := context.Background()

	c1 := newTestClient(t, server.URL, Settings{CachePath: dir})
	_, err := c1.Get(ctx, "ping", nil)
	require.NoError(t, err)
	require.Equal(t, 1, *mints)

	// A second client instance with the same cache directory adopts the
	// persisted token instead of minting its own.
	c2 := newTestClient(t, server.URL, Settings{CachePath: dir})
	_, err = c2.Get(ctx, "ping", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, *mints)
}

func TestTestRequest(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		server, mux, _ := newAPIServer(t)
		mux.HandleFunc("/test/", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "POST", r.Method)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"success":true}`))
		})

		c := newTestClient(t, server.URL, Settings{})
		assert.NoError(t, c.TestRequest(context.Background()))
	})

	t.Run("unsuccessful payload", func(t *testing.T) {
		server, mux, _ := newAPIServer(t)
		mux.HandleFunc("/test/", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success":false}`))
		})

		c := newTestClient(t, server.URL, Settings{})
		assert.ErrorIs(t, c.TestRequest(context.Background()), ErrTestFailed)
	})

	t.Run("non-JSON body", func(t *testing.T) {
		server, mux, _ := newAPIServer(t)
		mux.HandleFunc("/test/", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>oops</html>"))
		})

		c := newTestClient(t, server.URL, Settings{})
		err := c.TestRequest(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "non-JSON")
	})
}
