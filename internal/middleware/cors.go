package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/cors"
	"golang.org/x/exp/slog"
)

// CORSMode makes the origin policy an explicit choice.
type CORSMode string

const (
	// CORSStrict allows only the configured origins.
	CORSStrict CORSMode = "strict"
	// CORSPermissive allows any origin and logs a warning at startup.
	CORSPermissive CORSMode = "permissive"
)

func ParseCORSMode(s string) (CORSMode, error) {
	switch CORSMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", CORSStrict:
		return CORSStrict, nil
	case CORSPermissive:
		return CORSPermissive, nil
	}
	return "", fmt.Errorf("unknown CORS mode %q (want strict or permissive)", s)
}

// NewCORS builds the CORS middleware for mode. Strict mode with no origins is an error.
func NewCORS(logger *slog.Logger, mode CORSMode, origins []string) (func(http.Handler) http.Handler, error) {
	opts := cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}

	switch mode {
	case CORSStrict:
		if len(origins) == 0 {
			return nil, fmt.Errorf("strict CORS mode requires at least one allowed origin")
		}
		opts.AllowedOrigins = origins
		opts.AllowCredentials = true
	case CORSPermissive:
		logger.Warn("CORS is permissive: every origin is allowed", slog.String("cors_mode", string(mode)))
		opts.AllowedOrigins = []string{"*"}
	default:
		return nil, fmt.Errorf("unknown CORS mode %q", mode)
	}

	return cors.Handler(opts), nil
}
