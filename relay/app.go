package relay

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/alovak/everypay-relay/internal/everypay"
	"github.com/alovak/everypay-relay/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"golang.org/x/exp/slog"
)

// App is the main application, it contains all the components of the relay
// and is responsible for starting and stopping them.
type App struct {
	srv    *http.Server
	wg     *sync.WaitGroup
	Addr   string
	logger *slog.Logger
	config *Config
	repo   *Repository

	openRepository func(ctx context.Context, cfg *Config) (*Repository, error)
}

func NewApp(logger *slog.Logger, config *Config) *App {
	logger = logger.With(slog.String("app", "relay"))

	if config == nil {
		config = DefaultConfig()
	}

	return &App{
		wg:             &sync.WaitGroup{},
		logger:         logger,
		config:         config,
		openRepository: OpenRepository,
	}
}

// OpenRepository builds the ledger for the configured backend.
func OpenRepository(ctx context.Context, cfg *Config) (*Repository, error) {
	switch cfg.RepoBackend {
	case "", "mem":
		return NewRepository(), nil
	case "pg":
		if cfg.DBDSN == "" {
			return nil, fmt.Errorf("DB_DSN is required for pg backend")
		}
		db, err := sql.Open("postgres", cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxIdleConns(5)
		db.SetMaxOpenConns(10)
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		return NewPGRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported REPO_BACKEND=%s", cfg.RepoBackend)
	}
}

func (a *App) Start() error {
	a.logger.Info("starting app...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repository, err := a.openRepository(ctx, a.config)
	if err != nil {
		return err
	}
	if err := repository.Migrate(ctx); err != nil {
		repository.Close()
		return fmt.Errorf("migrating ledger: %w", err)
	}
	a.repo = repository

	cors, err := middleware.NewCORS(a.logger, a.config.CORSMode, a.config.CORSAllowedOrigins)
	if err != nil {
		a.closeRepository()
		return fmt.Errorf("configuring cors: %w", err)
	}

	gateway := everypay.New(a.config.everyPay(), nil)
	reconciler := NewLedgerReconciler(gateway, repository, a.logger)
	svc := NewService(gateway, repository, reconciler, a.config, a.logger)

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(middleware.NewStructuredLogger(a.logger))
	router.Use(chimw.Recoverer)
	router.Use(cors)

	api := NewAPI(svc)
	api.AppendRoutes(router)

	router.Get("/-/live", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	router.Get("/-/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := repository.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	l, err := net.Listen("tcp", a.config.HTTPAddr)
	if err != nil {
		a.closeRepository()
		return fmt.Errorf("listening tcp port: %w", err)
	}

	a.Addr = l.Addr().String()

	// WriteTimeout leaves room for one upstream call per request
	a.srv = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      a.config.UpstreamTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.wg.Add(1)
	go func() {
		a.logger.Info("http server started", slog.String("addr", a.Addr))

		if err := a.srv.Serve(l); err != nil {
			if err != http.ErrServerClosed {
				a.logger.Error("starting http server", "err", err)
			}

			a.logger.Info("http server stopped")
		}

		a.wg.Done()
	}()

	return nil
}

func (a *App) Shutdown() {
	a.logger.Info("shutting down app...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if a.srv != nil {
		if err := a.srv.Shutdown(ctx); err != nil {
			a.logger.Error("shutting down http server", "err", err)
		}
	}

	a.wg.Wait()
	a.closeRepository()

	a.logger.Info("app stopped")
}

func (a *App) closeRepository() {
	if a.repo == nil {
		return
	}
	if err := a.repo.Close(); err != nil {
		a.logger.Error("closing repository", "err", err)
	}
	a.repo = nil
}
