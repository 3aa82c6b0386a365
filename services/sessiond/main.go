package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sessiond/internal/clock"
	"github.com/sessiond/internal/config"
	"github.com/sessiond/internal/expiry"
	"github.com/sessiond/internal/handler"
	"github.com/sessiond/internal/logger"
	"github.com/sessiond/internal/metrics"
	"github.com/sessiond/internal/middleware"
	"github.com/sessiond/internal/repository"
	"github.com/sessiond/internal/service"
	"github.com/sessiond/internal/startup"
	"github.com/sessiond/internal/storage"
	"github.com/sessiond/internal/storage/memory"
	redisstorage "github.com/sessiond/internal/storage/redis"
	"github.com/sessiond/internal/ws"
	"github.com/sessiond/migrations"
)

func main() {
	logger.SetPrefix("sessiond")
	migrate := flag.Bool("migrate", false, "apply database migrations and exit (postgres backend)")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")
	flag.Parse()

	logger.Info("starting session service")
	cfg := config.Load()
	if *dev {
		cfg.Session.Backend = config.BackendPostgres
	}
	if err := cfg.Validate(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.Log.Level)
	if cfg.Log.File != "" {
		closer, err := logger.SetOutputFile(logger.FileOptions{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		})
		if err != nil {
			logger.Errorf("log file %s: %v", cfg.Log.File, err)
			os.Exit(1)
		}
		defer closer.Close()
	}

	if *dev {
		embeddedDB, dsn, err := startup.StartEmbeddedPostgres()
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		cfg.Database.URL = dsn
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	store, done := openStore(cfg, *migrate && !*dev)
	if done {
		return
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Errorf("close store: %v", err)
		}
	}()

	clk, err := clock.New(cfg.Session.TimeZone)
	if err != nil {
		logger.Errorf("clock: %v", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	hub := ws.NewHub(cfg.MaxWSConnections)

	svc := service.NewSessionService(store,
		service.WithClock(clk),
		service.WithIdleTimeout(cfg.Session.IdleTimeout),
		service.WithEvents(hub),
		service.WithMetrics(m),
	)
	syncCtx, syncCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := svc.SyncMetrics(syncCtx); err != nil {
		logger.Errorf("sync metrics: %v", err)
	}
	syncCancel()

	var bgWg sync.WaitGroup
	bgWg.Add(1)
	go func() {
		defer bgWg.Done()
		hub.Run(hubCtx)
	}()

	// Сборщик живёт до отмены контекста процесса: сначала останавливается HTTP, затем sweep.
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	scheduler := expiry.NewScheduler(svc, clk, cfg.Session.SweepInterval)
	bgWg.Add(1)
	go func() {
		defer bgWg.Done()
		scheduler.Run(sweepCtx)
	}()

	loginLimiter := middleware.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)
	bgWg.Add(1)
	go func() {
		defer bgWg.Done()
		loginLimiter.RunCleanup(sweepCtx)
	}()

	var cookie *handler.CookieOptions
	if cfg.Session.Cookie {
		cookie = &handler.CookieOptions{Secure: cfg.Session.CookieSecure}
	}
	sessionH := handler.NewSessionHandler(svc, cookie)
	wsH := handler.NewWSHandler(hub, cfg.AllowedOrigins())

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	// Не сжимать WebSocket — иначе ResponseWriter не реализует http.Hijacker и upgrade даёт 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Internal-Secret"},
		AllowCredentials: cfg.Session.Cookie,
		MaxAge:           300,
	}))

	sessionH.Routes(r, loginLimiter.Middleware)
	r.Group(func(r chi.Router) {
		r.Use(middleware.InternalOnly(cfg.InternalSecret))
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		r.Get("/ws/events", wsH.ServeEvents)
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s (backend=%s, idle timeout=%s, sweep every %s, tz=%s)",
			cfg.ServerAddr, cfg.Session.Backend, cfg.Session.IdleTimeout, cfg.Session.SweepInterval, cfg.Session.TimeZone)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	sweepCancel()
	hubCancel()
	bgWg.Wait()
	logger.Info("scheduler and hub stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

// openStore подключает выбранный бэкенд. done == true — процесс запущен только для миграций.
func openStore(cfg *config.Config, migrateOnly bool) (storage.SessionStore, bool) {
	switch cfg.Session.Backend {
	case config.BackendRedis:
		logger.Infof("session backend: redis %s", redisstorage.LogAddr(cfg.Redis.URL))
		return startup.ConnectRedisWithRetry(cfg.Redis.URL, 60*time.Second, ""), false
	case config.BackendPostgres:
		poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
		if err != nil {
			logger.Errorf("parse db config: %v", err)
			os.Exit(1)
		}
		poolCfg.MaxConns = int32(cfg.Database.MaxConnections)
		pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second, "")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = repository.Migrate(ctx, pool, migrations.Files)
		cancel()
		if err != nil {
			logger.Errorf("migrations: %v", err)
			pool.Close()
			os.Exit(1)
		}
		logger.Info("database connected, migrations applied")
		if migrateOnly {
			pool.Close()
			return nil, true
		}
		return &pgStore{SessionRepository: repository.NewSessionRepository(pool), pool: pool}, false
	default:
		logger.Info("session backend: memory (sessions are lost on restart)")
		return memory.New(), false
	}
}

// pgStore закрывает пул вместе с репозиторием.
type pgStore struct {
	*repository.SessionRepository
	pool *pgxpool.Pool
}

func (s *pgStore) Close() error {
	s.pool.Close()
	return nil
}
