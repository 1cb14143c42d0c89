package relay

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/alovak/everypay-relay/internal/middleware"
	"golang.org/x/exp/slog"
)

func TestStartClosesRepositoryOnFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()

	cases := map[string]func(cfg *Config){
		"cors":   func(cfg *Config) { cfg.CORSAllowedOrigins = nil },
		"listen": func(cfg *Config) { cfg.HTTPAddr = busy.Addr().String() },
	}
	for name, breakConfig := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.HTTPAddr = "127.0.0.1:0"
			cfg.CORSMode = middleware.CORSStrict
			cfg.CORSAllowedOrigins = []string{"https://shop.example"}
			breakConfig(cfg)

			repo := NewRepository()
			app := NewApp(slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
			app.openRepository = func(ctx context.Context, cfg *Config) (*Repository, error) {
				return repo, nil
			}

			if err := app.Start(); err == nil {
				app.Shutdown()
				t.Fatalf("Start: expected error")
			}
			if err := repo.Ping(context.Background()); err != ErrClosed {
				t.Fatalf("repository after failed Start: got %v want ErrClosed", err)
			}
			if app.repo != nil {
				t.Fatalf("app still holds the repository")
			}
		})
	}
}
