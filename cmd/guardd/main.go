// Command guardd puts the access guard in front of a server-rendered
// dashboard. Every page request is evaluated before it is proxied to the
// upstream; denied requests are answered with a redirect.
//
// Configuration comes from GOGUARD_* environment variables; flags override
// the listen address, upstream, and backend API.
//
// Run:
//
//	GOGUARD_LINK_SECRETS=<32+ byte secret> go run ./cmd/guardd \
//	  --upstream http://localhost:3000 --api http://localhost:4000
//
// Without GOGUARD_REDIS_ADDR an in-process miniredis backs revocations, link
// rate limits, and the logout latch.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/client"
	"github.com/MrEthical07/goGuard/metrics/export/prometheus"
	"github.com/MrEthical07/goGuard/middleware"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

func main() {
	var (
		listen   = pflag.String("listen", ":8080", "listen address")
		upstream = pflag.String("upstream", "http://localhost:3000", "page server to proxy allowed requests to")
		api      = pflag.String("api", "http://localhost:4000", "backend API base URL for whoami, subscriptions, and logout")
		metrics  = pflag.String("metrics-path", "/metrics", "path serving Prometheus metrics; empty disables")
		secure   = pflag.Bool("secure-cookies", false, "mark the return-path cookie Secure")
		debug    = pflag.Bool("debug", false, "enable debug logging")
	)
	pflag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if err := run(logger, *listen, *upstream, *api, *metrics, *secure); err != nil {
		logger.Error("guardd stopped", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, listen, upstream, api, metricsPath string, secure bool) error {
	cfg, err := goGuard.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	for _, w := range cfg.Lint() {
		logger.Warn("config lint", "code", w.Code, "severity", w.Severity.String(), "message", w.Message)
	}

	// ---------- infrastructure ----------
	rdb, cleanup, err := openRedis(cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	backend, err := client.New(client.Config{BaseURL: api}, &http.Client{Timeout: 10 * time.Second})
	if err != nil {
		return err
	}

	// ---------- build engine ----------
	engine, err := goGuard.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentity(backend).
		WithSubscriptions(backend).
		WithLogout(backend.Logout).
		WithAuditSink(goGuard.NewSlogSink(logger)).
		WithLogger(logger).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	target, err := url.Parse(upstream)
	if err != nil {
		return err
	}
	proxy := httputil.NewSingleHostReverseProxy(target)

	opts := middleware.Options{SecureCookies: secure, Logger: logger}

	// ---------- routes ----------
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/return", func(w http.ResponseWriter, r *http.Request) {
		dest, ok := middleware.ReturnPath(w, r, opts)
		if !ok {
			dest = "/"
		}
		http.Redirect(w, r, dest, http.StatusSeeOther)
	})
	if metricsPath != "" {
		mux.Handle("GET "+metricsPath, prometheus.NewPrometheusExporter(engine).Handler())
	}
	mux.Handle("/", middleware.Guard(engine, opts)(proxy))

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("guardd listening", "addr", listen, "upstream", upstream)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openRedis(cfg goGuard.RedisConfig, logger *slog.Logger) (redis.UniversalClient, func(), error) {
	if cfg.Addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, err
		}
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		logger.Warn("no redis configured; using in-process miniredis", "addr", mr.Addr())
		return rdb, func() {
			_ = rdb.Close()
			mr.Close()
		}, nil
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Addr},
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return rdb, func() { _ = rdb.Close() }, nil
}
