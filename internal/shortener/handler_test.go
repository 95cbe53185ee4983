package shortener_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sundayezeilo/linkusage/internal/shorten"
	"github.com/sundayezeilo/linkusage/internal/shortener"
	"github.com/sundayezeilo/linkusage/internal/storage/memory"
)

const testBaseURL = "http://localhost:8080"

type slugSeq struct{ n int }

func (s *slugSeq) Generate(int) (string, error) {
	s.n++
	return fmt.Sprintf("s%d", s.n), nil
}

func newRouter(t *testing.T, pinger shortener.Pinger) http.Handler {
	t.Helper()

	provider := shorten.NewLocal(testBaseURL, &shorten.LocalConfig{SlugGenerator: &slugSeq{}})
	store := memory.New(provider)
	if pinger == nil {
		pinger = store
	}
	svc := shortener.NewService(store.Mappings(), store.Usages(), &shortener.ServiceConfig{Pinger: pinger})
	h := shortener.NewHandler(shortener.HandlerConfig{
		Service: svc,
		Logger:  zap.NewNop(),
		BaseURL: testBaseURL,
	})

	r := chi.NewRouter()
	h.Register(r)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.RemoteAddr = "10.0.0.5:443"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func create(t *testing.T, h http.Handler, initialURL string) shortener.MappingResponse {
	t.Helper()
	rr := do(t, h, http.MethodPost, "/api/v1/url_shortener/", fmt.Sprintf(`{"initial_url":%q}`, initialURL))
	require.Contains(t, []int{http.StatusCreated, http.StatusOK}, rr.Code, rr.Body.String())

	var resp shortener.MappingResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestHandler_Create(t *testing.T) {
	h := newRouter(t, nil)

	type want struct {
		statusCode int
		errorCode  string
	}

	tests := []struct {
		name string
		body string
		want want
	}{
		{
			name: "new url",
			body: `{"initial_url":"https://example.com/a"}`,
			want: want{statusCode: http.StatusCreated},
		},
		{
			name: "same url again",
			body: `{"initial_url":"https://example.com/a"}`,
			want: want{statusCode: http.StatusOK},
		},
		{
			name: "missing initial_url",
			body: `{}`,
			want: want{statusCode: http.StatusBadRequest, errorCode: "validation_failed"},
		},
		{
			name: "unsupported scheme",
			body: `{"initial_url":"ftp://example.com"}`,
			want: want{statusCode: http.StatusBadRequest, errorCode: "invalid_input"},
		},
		{
			name: "malformed body",
			body: `{"initial_url":`,
			want: want{statusCode: http.StatusBadRequest, errorCode: "invalid_input"},
		},
		{
			name: "unknown field",
			body: `{"initial_url":"https://example.com/b","custom_slug":"x"}`,
			want: want{statusCode: http.StatusBadRequest, errorCode: "invalid_input"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/api/v1/url_shortener/", tt.body)
			assert.Equal(t, tt.want.statusCode, rr.Code, rr.Body.String())
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			if tt.want.errorCode != "" {
				var resp map[string]any
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
				assert.Equal(t, tt.want.errorCode, resp["error"])
				return
			}

			var resp shortener.MappingResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, int64(1), resp.ID)
			assert.Equal(t, "https://example.com/a", resp.InitialURL)
			assert.Equal(t, testBaseURL+"/s1", resp.ShortURL)
			assert.True(t, resp.Active)
		})
	}
}

func TestHandler_RedirectAndStatus(t *testing.T) {
	h := newRouter(t, nil)
	m := create(t, h, "https://example.com/target")
	base := fmt.Sprintf("/api/v1/url_shortener/%d", m.ID)

	for range 3 {
		rr := do(t, h, http.MethodGet, base, "")
		require.Equal(t, http.StatusTemporaryRedirect, rr.Code)
		assert.Equal(t, "https://example.com/target", rr.Header().Get("Location"))
		assert.JSONEq(t, `{"initial_url":"https://example.com/target"}`, rr.Body.String())
	}

	// Resolution through the issued short URL counts as usage as well.
	slug := strings.TrimPrefix(m.ShortURL, testBaseURL+"/")
	rr := do(t, h, http.MethodGet, "/"+slug, "")
	require.Equal(t, http.StatusTemporaryRedirect, rr.Code)

	t.Run("count", func(t *testing.T) {
		rr := do(t, h, http.MethodGet, base+"/status", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "4", strings.TrimSpace(rr.Body.String()))
	})

	t.Run("count ignores pagination", func(t *testing.T) {
		rr := do(t, h, http.MethodGet, base+"/status?max-result=1&offset=3", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "4", strings.TrimSpace(rr.Body.String()))
	})

	pages := []struct {
		query string
		want  int
	}{
		{"?full-info", 4},
		{"?full-info&max-result=2&offset=0", 2},
		{"?full-info=true&max-result=2&offset=3", 1},
		{"?full-info&max-result=2&offset=4", 0},
	}
	for _, p := range pages {
		t.Run("full info "+p.query, func(t *testing.T) {
			rr := do(t, h, http.MethodGet, base+"/status"+p.query, "")
			require.Equal(t, http.StatusOK, rr.Code)

			var events []shortener.UsageResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &events))
			require.NotNil(t, events)
			assert.Len(t, events, p.want)
			for _, ev := range events {
				assert.Equal(t, m.ID, ev.URLID)
				assert.Equal(t, "10.0.0.5", ev.ClientHost)
				assert.Equal(t, 443, ev.ClientPort)
			}
		})
	}

	t.Run("bad pagination", func(t *testing.T) {
		for _, q := range []string{"?full-info&max-result=0", "?full-info&offset=-1", "?max-result=abc"} {
			rr := do(t, h, http.MethodGet, base+"/status"+q, "")
			assert.Equal(t, http.StatusBadRequest, rr.Code, q)
		}
	})
}

func TestHandler_DeleteLifecycle(t *testing.T) {
	h := newRouter(t, nil)
	m := create(t, h, "https://example.com/doomed")
	base := fmt.Sprintf("/api/v1/url_shortener/%d", m.ID)

	rr := do(t, h, http.MethodGet, base, "")
	require.Equal(t, http.StatusTemporaryRedirect, rr.Code)

	rr = do(t, h, http.MethodDelete, base, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var deleted shortener.MappingResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &deleted))
	assert.False(t, deleted.Active)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"second delete", http.MethodDelete, base, "", http.StatusGone},
		{"redirect by id", http.MethodGet, base, "", http.StatusGone},
		{"redirect by slug", http.MethodGet, strings.TrimPrefix(m.ShortURL, testBaseURL), "", http.StatusGone},
		{"recreate", http.MethodPost, "/api/v1/url_shortener/", `{"initial_url":"https://example.com/doomed"}`, http.StatusGone},
		{"status still answers", http.MethodGet, base + "/status", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
		})
	}

	rr = do(t, h, http.MethodGet, base+"/status", "")
	assert.Equal(t, "1", strings.TrimSpace(rr.Body.String()))
}

func TestHandler_NotFound(t *testing.T) {
	h := newRouter(t, nil)

	tests := []struct {
		name   string
		method string
		target string
		want   int
	}{
		{"redirect unknown id", http.MethodGet, "/api/v1/url_shortener/42", http.StatusNotFound},
		{"delete unknown id", http.MethodDelete, "/api/v1/url_shortener/42", http.StatusNotFound},
		{"status unknown id", http.MethodGet, "/api/v1/url_shortener/42/status", http.StatusNotFound},
		{"unknown slug", http.MethodGet, "/nothing", http.StatusNotFound},
		{"non-numeric id", http.MethodGet, "/api/v1/url_shortener/abc", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, tt.method, tt.target, "")
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestHandler_Ping(t *testing.T) {
	t.Run("healthy store", func(t *testing.T) {
		rr := do(t, newRouter(t, nil), http.MethodGet, "/api/v1/database/ping", "")
		require.Equal(t, http.StatusOK, rr.Code)

		var resp shortener.PingResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.GreaterOrEqual(t, resp.PingTime, 0.0)
	})

	t.Run("store down", func(t *testing.T) {
		rr := do(t, newRouter(t, failingPinger{}), http.MethodGet, "/api/v1/database/ping", "")
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}

func TestHandler_ProviderFailure(t *testing.T) {
	failing := shorten.Func(func(context.Context, string) (string, error) {
		return "", errors.New("tinyurl timeout")
	})
	store := memory.New(failing)
	h := shortener.NewHandler(shortener.HandlerConfig{
		Service: shortener.NewService(store.Mappings(), store.Usages(), nil),
		BaseURL: testBaseURL,
	})
	r := chi.NewRouter()
	h.Register(r)

	rr := do(t, r, http.MethodPost, "/api/v1/url_shortener/", `{"initial_url":"https://example.com"}`)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}
