// Command server exposes the fetch entry point over HTTP.
package main

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"marketdata/internal/catalog"
	"marketdata/internal/config"
	"marketdata/internal/logging"
	"marketdata/internal/provider/cache"
)

func main() {
	loader := config.NewLoader(getenv("MARKETDATA_CONFIG", ""))
	cfg, err := loader.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	log, closer, err := logging.New(cfg.Log, os.Stdout)
	if err != nil {
		logrus.Fatalf("logging: %v", err)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := catalog.Open(ctx, cfg, catalog.WithLogger(log))
	if err != nil {
		log.WithError(err).Fatal("catalog")
	}
	defer rt.Close()

	gin.SetMode(gin.ReleaseMode)
	router := newRouter(&handler{
		fetch:   rt.Coordinator,
		chains:  rt.Registry,
		timeout: cfg.Server.RequestTimeout,
		log:     log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           withGzip(router),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server")
		}
	}()

	if rt.Cache.Enabled() && cfg.Cache.SweepInterval > 0 {
		go sweepLoop(ctx, rt.Cache, cfg.Cache.SweepInterval, log)
	}
	go reloadOnHangup(ctx, loader, rt, log)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// sweepLoop drops expired cache entries every interval.
func sweepLoop(ctx context.Context, c *cache.Cache, every time.Duration, log logrus.FieldLogger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := c.Sweep(ctx)
			if err != nil {
				log.WithError(err).Warn("cache sweep failed")
				continue
			}
			log.WithFields(logrus.Fields{"removed": n, "stats": c.Stats()}).Debug("cache swept")
		}
	}
}

// reloadOnHangup re-reads .env and the config file on SIGHUP and swaps the
// credentials in. Other settings need a restart.
func reloadOnHangup(ctx context.Context, loader *config.Loader, rt *catalog.Runtime, log logrus.FieldLogger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			cfg, err := loader.Reload()
			if err != nil {
				log.WithError(err).Error("config reload failed")
				continue
			}
			rt.Reload(cfg)
			log.WithField("missing", rt.Validator.Missing(rt.Registry.Providers())).Info("credentials reloaded")
		}
	}
}

// withGzip compresses response when client supports gzip.
func withGzip(next http.Handler) http.Handler {
	var gzPool = sync.Pool{New: func() any {
		// JSON payloads; favour CPU over ratio
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	}}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		gz := gzPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			_ = gz.Close()
			gz.Reset(io.Discard)
			gzPool.Put(gz)
		}()
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		next.ServeHTTP(gzipResponseWriter{ResponseWriter: w, Writer: gz}, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	Writer io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) {
	return g.Writer.Write(b)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
