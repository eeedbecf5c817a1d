package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	app "draw-new/internal/app"
	cache "draw-new/internal/cache"
	httpx "draw-new/internal/http"
	store "draw-new/internal/store"
	ws "draw-new/internal/ws"
	"draw-new/pkg/auth"
)

func main() {
	// Load local .env (dev only)
	_ = godotenv.Load()

	cfg := app.LoadConfig()
	logger := app.NewLogger(cfg.Env)
	logger.Info("config.loaded", cfg.LogAttrs()...)

	// Cancel on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Postgres connection + migrations (users, rooms, event log)
	pg, err := store.NewPostgres(ctx, cfg, logger)
	if err != nil {
		logger.Error("postgres connect", "err", err)
		log.Fatal(err)
	}
	defer pg.Close()
	if err := store.RunMigrations(ctx, pg, logger); err != nil {
		logger.Error("migrations", "err", err)
		log.Fatal(err)
	}

	// Redis history cache in front of the event log
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("redis connect", "err", err)
		log.Fatal(err)
	}
	defer rdb.Close()
	history := cache.NewHistory(rdb, pg, cfg.HistoryCacheTTL, logger)

	// Broadcast engine
	jwt := auth.New(cfg.JWTSecret)
	hub := ws.NewHub(logger, jwt, history, ws.Options{
		QueueSize:      cfg.WSQueueSize,
		PingInterval:   cfg.WSPingInterval,
		ReadLimit:      cfg.WSReadLimit,
		PersistTimeout: cfg.PersistTimeout,
		OriginPatterns: originPatterns(cfg.CORSAllow),
	})
	hubDone := make(chan struct{})
	go func() { hub.Run(ctx); close(hubDone) }()

	// HTTP + WS router
	router := httpx.NewRouter(cfg, logger, httpx.Deps{
		Hub: hub, Users: pg, Rooms: pg, History: history, DB: pg, JWT: jwt,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("server.listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server.crash", "err", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("server.shutdown.start")

	// shutdown: stop accepting, then drain websocket sessions
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)
	select {
	case <-hubDone:
	case <-shutdownCtx.Done():
		logger.Warn("server.shutdown.timeout")
	}

	logger.Info("server.shutdown.complete")
	_ = os.Stdout.Sync()
}

// originPatterns turns the CORS allowlist into websocket origin host patterns.
func originPatterns(allow []string) []string {
	out := make([]string, 0, len(allow))
	for _, o := range allow {
		if _, host, ok := strings.Cut(o, "://"); ok {
			o = host
		}
		out = append(out, o)
	}
	return out
}
