package middleware_test

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alovak/everypay-relay/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseCORSMode(t *testing.T) {
	m, err := middleware.ParseCORSMode("")
	require.NoError(t, err)
	require.Equal(t, middleware.CORSStrict, m)

	m, err = middleware.ParseCORSMode("Permissive")
	require.NoError(t, err)
	require.Equal(t, middleware.CORSPermissive, m)

	_, err = middleware.ParseCORSMode("allow-all")
	require.Error(t, err)
}

func TestNewCORS_StrictRequiresOrigins(t *testing.T) {
	_, err := middleware.NewCORS(discardLogger(), middleware.CORSStrict, nil)
	require.Error(t, err)
}

func preflight(t *testing.T, h func(http.Handler) http.Handler, origin string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Use(h)
	r.Get("/payment-result", func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodOptions, "/payment-result", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestNewCORS_Strict(t *testing.T) {
	h, err := middleware.NewCORS(discardLogger(), middleware.CORSStrict, []string{"https://shop.example"})
	require.NoError(t, err)

	w := preflight(t, h, "https://shop.example")
	require.Equal(t, "https://shop.example", w.Header().Get("Access-Control-Allow-Origin"))

	w = preflight(t, h, "https://evil.example")
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewCORS_PermissiveWarns(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h, err := middleware.NewCORS(logger, middleware.CORSPermissive, nil)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "level=WARN")
	require.Contains(t, buf.String(), "cors_mode=permissive")

	w := preflight(t, h, "https://anything.example")
	require.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.NewStructuredLogger(logger))
	r.Get("/teapot", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/teapot", nil))

	require.Equal(t, http.StatusTeapot, w.Code)
	require.Contains(t, buf.String(), "level=WARN")
	require.Contains(t, buf.String(), "status=418")
	require.Contains(t, buf.String(), "path=/teapot")
	require.Contains(t, buf.String(), "request_id=")
}
