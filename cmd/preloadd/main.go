package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"preloadd/internal/config"
	"preloadd/internal/fetch"
	"preloadd/internal/httpapi"
	"preloadd/internal/manifest"
	"preloadd/internal/preload"
)

func main() {
	// Flags with environment variable defaults
	defaultAddr := ":8080"
	if v := os.Getenv("PRELOADD_ADDR"); v != "" {
		defaultAddr = v
	}
	addr := flag.String("addr", defaultAddr, "HTTP listen address, e.g. :8080")
	configPath := flag.String("config", "", "Optional config file (.yaml/.json/.toml); explicit flags win")
	manifestPath := flag.String("manifest", "", "Warmup manifest of image sources to preload at startup")
	fetchTimeoutMs := flag.Int("fetch-timeout-ms", 30000, "Per-fetch HTTP timeout in ms (0 disables)")
	maxInflight := flag.Int("max-inflight", 0, "Max simultaneous fetches (0=unlimited)")
	slowLoadMs := flag.Int("slow-load-ms", 2000, "Slow-load warning threshold in ms")
	quality := flag.Int("quality", 0, "JPEG quality hint for unoptimized sources (0=auto)")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	flag.Parse()

	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "preloadd").Logger()

	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", *configPath).Msg("failed to load config")
		}
		applyConfig(cfg, map[string]any{
			"addr":             addr,
			"manifest":         manifestPath,
			"fetch-timeout-ms": fetchTimeoutMs,
			"max-inflight":     maxInflight,
			"slow-load-ms":     slowLoadMs,
			"quality":          quality,
			"log-level":        logLevel,
		})
	}

	if lvl, err := zerolog.ParseLevel(*logLevel); err == nil {
		logger = logger.Level(lvl)
	}
	httpapi.SetLogger(logger)
	httpapi.SetDefaultQuality(*quality)

	fetcher := fetch.NewHTTPFetcher(time.Duration(*fetchTimeoutMs) * time.Millisecond)
	fetcher.UserAgent = "preloadd/1.0"
	cache := preload.NewCache(preload.CacheConfig{
		Fetcher:     fetcher,
		MaxInflight: int64(*maxInflight),
	})
	preload.RegisterCacheSize(cache)

	// Base context canceled on shutdown so in-flight handlers unwind.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)

	if *manifestPath != "" {
		reqs, err := manifest.LoadFile(*manifestPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", *manifestPath).Msg("failed to load warmup manifest")
		}
		cache.SetReady(false)
		warmer := &preload.Warmer{
			Cache:             cache,
			Sink:              preload.PromSink{},
			Logger:            logger,
			SlowLoadThreshold: time.Duration(*slowLoadMs) * time.Millisecond,
		}
		go func() {
			stats := warmer.Warm(baseCtx, reqs)
			logger.Info().Int("loaded", stats.Loaded).Int("failed", stats.Failed).Msg("warmup complete")
			cache.SetReady(true)
		}()
	}

	mux := httpapi.NewMux(cache)
	srv := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		logger.Info().Str("addr", *addr).Str("manifest", *manifestPath).Msg("preloadd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown error")
	}
}

// applyConfig fills flag values from the config file for flags the user did
// not set explicitly on the command line.
func applyConfig(cfg config.Config, targets map[string]any) {
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	setString := func(name, v string) {
		if v == "" || set[name] {
			return
		}
		*targets[name].(*string) = v
	}
	setInt := func(name string, v int) {
		if v == 0 || set[name] {
			return
		}
		*targets[name].(*int) = v
	}

	setString("addr", cfg.Addr)
	setString("manifest", cfg.Manifest)
	setString("log-level", cfg.LogLevel)
	setInt("fetch-timeout-ms", cfg.FetchTimeoutMs)
	setInt("max-inflight", cfg.MaxInflight)
	setInt("slow-load-ms", cfg.SlowLoadMs)
	setInt("quality", cfg.Quality)
}
