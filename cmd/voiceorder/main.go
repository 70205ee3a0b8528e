// Command voiceorder runs the voice ordering backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/xxgiasonxx/voice-ordering-system/internal/config"
	"github.com/xxgiasonxx/voice-ordering-system/internal/health"
	"github.com/xxgiasonxx/voice-ordering-system/internal/observe"
	"github.com/xxgiasonxx/voice-ordering-system/internal/order"
	"github.com/xxgiasonxx/voice-ordering-system/internal/server"
	"github.com/xxgiasonxx/voice-ordering-system/internal/session"
	"github.com/xxgiasonxx/voice-ordering-system/internal/stream"
	"github.com/xxgiasonxx/voice-ordering-system/pkg/audio"
	"github.com/xxgiasonxx/voice-ordering-system/pkg/menu"
	menupostgres "github.com/xxgiasonxx/voice-ordering-system/pkg/menu/postgres"
	"github.com/xxgiasonxx/voice-ordering-system/pkg/provider/asr"
	"github.com/xxgiasonxx/voice-ordering-system/pkg/provider/asr/deepgram"
	"github.com/xxgiasonxx/voice-ordering-system/pkg/provider/asr/whisper"
	"github.com/xxgiasonxx/voice-ordering-system/pkg/provider/embeddings"
	oaembed "github.com/xxgiasonxx/voice-ordering-system/pkg/provider/embeddings/openai"
	"github.com/xxgiasonxx/voice-ordering-system/pkg/provider/generator"
	"github.com/xxgiasonxx/voice-ordering-system/pkg/provider/generator/anyllm"
	"github.com/xxgiasonxx/voice-ordering-system/pkg/store/redisstore"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voiceorder: %v\n", err)
		return 1
	}
	applyEnvFallbacks(cfg)
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "voiceorder: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voiceorder starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "voice-ordering"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Token store ───────────────────────────────────────────────────────────
	tokens, err := redisstore.New(ctx, redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		slog.Error("failed to connect to redis", "addr", cfg.Redis.Addr, "err", err)
		return 1
	}
	defer tokens.Close()

	checkers := []health.Checker{health.PingChecker("redis", tokens)}

	// ── Menu ──────────────────────────────────────────────────────────────────
	var (
		resolver  menu.Resolver
		retriever menu.Retriever
		entries   []menu.Entry
	)
	if cfg.Menu.PostgresDSN != "" {
		menuStore, err := menupostgres.NewStore(ctx, cfg.Menu.PostgresDSN, cfg.Menu.Dimensions())
		if err != nil {
			slog.Error("failed to open menu store", "err", err)
			return 1
		}
		defer menuStore.Close()
		resolver = menuStore
		checkers = append(checkers, health.PingChecker("postgres", menuStore))

		entries, err = menuStore.AllEntries(ctx)
		if err != nil {
			slog.Warn("could not preload menu entries", "err", err)
		}

		if embedder := buildEmbedder(cfg.Providers.Embeddings); embedder != nil {
			idx := menuStore.Retrieval(embedder)
			if len(entries) > 0 {
				// A failed refresh leaves chunks from the previous boot
				// in place, so the index stays usable.
				if err := idx.IndexEntries(ctx, entries); err != nil {
					slog.Warn("menu vector index refresh failed", "err", err)
				}
			}
			retriever = idx
			slog.Info("menu retrieval ready", "mode", "vector", "top_k", cfg.Menu.TopK(), "indexed", len(entries))
		}
	}
	if retriever == nil && len(entries) > 0 {
		// No vector index available; fall back to lexical ranking over
		// the loaded catalog.
		retriever = menu.NewLexicalIndex(entries)
		slog.Info("menu retrieval ready", "mode", "lexical", "entries", len(entries))
	}
	if resolver == nil {
		slog.Error("menu.postgres_dsn is required to resolve order items")
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	asrProvider, err := buildASR(cfg.Providers.ASR)
	if err != nil {
		slog.Error("failed to build asr provider", "name", cfg.Providers.ASR.Name, "err", err)
		return 1
	}
	gen, err := buildGenerator(cfg.Providers.Generator)
	if err != nil {
		slog.Error("failed to build generator provider", "name", cfg.Providers.Generator.Name, "err", err)
		return 1
	}

	// ── Session service ───────────────────────────────────────────────────────
	sessions, err := session.New(tokens, []byte(cfg.Session.Secret), cfg.Session.FernetKey,
		session.WithTTL(cfg.Session.TTL()),
	)
	if err != nil {
		slog.Error("failed to build session service", "err", err)
		return 1
	}

	// ── Orchestrator ──────────────────────────────────────────────────────────
	decoder, err := buildDecoder(cfg.Stream)
	if err != nil {
		slog.Error("failed to build audio decoder", "codec", cfg.Stream.FrameCodec(), "err", err)
		return 1
	}

	engine := order.NewEngine(resolver, order.RandomIDs{})

	orchOpts := []stream.Option{
		stream.WithMaxSession(cfg.Stream.MaxSession()),
		stream.WithQueueDepth(cfg.Stream.QueueDepth()),
		stream.WithTopK(cfg.Menu.TopK()),
		stream.WithTerminalIntents(cfg.Session.Terminal()),
		stream.WithFrameDecoder(decoder),
		stream.WithStreamConfig(asrStreamConfig(cfg.Providers.ASR, entries)),
	}
	if retriever != nil {
		orchOpts = append(orchOpts, stream.WithRetriever(retriever))
	}
	orch := stream.New(sessions, engine, asrProvider, gen, orchOpts...)

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := server.New(sessions, orch,
		server.WithHealth(health.New(checkers...)),
		server.WithCookieTTL(cfg.Session.TTL()),
		server.WithSecureCookies(cfg.Server.TLS != nil),
	)

	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server ready", "addr", cfg.Server.ListenAddr)
		if cfg.Server.TLS != nil {
			errCh <- httpSrv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			errCh <- httpSrv.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			return 1
		}
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

func buildASR(entry config.ProviderEntry) (asr.Provider, error) {
	switch entry.Name {
	case "deepgram", "":
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, deepgram.WithLanguage(entry.Language))
		}
		return deepgram.New(entry.APIKey, opts...)
	case "whisper":
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, whisper.WithLanguage(entry.Language))
		}
		return whisper.New(entry.BaseURL, opts...)
	default:
		return nil, fmt.Errorf("unknown asr provider %q", entry.Name)
	}
}

func buildGenerator(entry config.ProviderEntry) (generator.Provider, error) {
	name := entry.Name
	if name == "" {
		name = "openai"
	}
	var backendOpts []anyllmlib.Option
	if entry.APIKey != "" {
		backendOpts = append(backendOpts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		backendOpts = append(backendOpts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	return anyllm.New(name, entry.Model, backendOpts)
}

// buildEmbedder returns nil when no embeddings provider is configured;
// menu retrieval then falls back to lexical ranking.
func buildEmbedder(entry config.ProviderEntry) embeddings.Provider {
	if entry.Name == "" || entry.APIKey == "" {
		return nil
	}
	var opts []oaembed.Option
	if entry.BaseURL != "" {
		opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
	}
	p, err := oaembed.New(entry.APIKey, entry.Model, opts...)
	if err != nil {
		slog.Warn("embeddings provider unavailable", "name", entry.Name, "err", err)
		return nil
	}
	return p
}

func buildDecoder(cfg config.StreamConfig) (audio.FrameDecoder, error) {
	switch cfg.FrameCodec() {
	case config.CodecOpus:
		return audio.NewOpusDecoder()
	default:
		return &audio.PCMDecoder{
			SampleRate: cfg.PCMSampleRate(),
			Channels:   audio.TargetChannels,
		}, nil
	}
}

// asrStreamConfig boosts recognition of the catalog's item names.
func asrStreamConfig(entry config.ProviderEntry, entries []menu.Entry) asr.StreamConfig {
	cfg := asr.StreamConfig{
		SampleRate: audio.TargetSampleRate,
		Channels:   audio.TargetChannels,
		Language:   entry.Language,
	}
	if cfg.Language == "" {
		cfg.Language = "zh-TW"
	}
	for _, e := range entries {
		cfg.Keywords = append(cfg.Keywords, asr.KeywordBoost{Keyword: e.Name, Boost: 2})
	}
	return cfg
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// applyEnvFallbacks fills secrets left out of the config file from the
// environment.
func applyEnvFallbacks(cfg *config.Config) {
	cfg.Session.Secret = envDefault(cfg.Session.Secret, "ORDERING_SESSION_SECRET")
	cfg.Session.FernetKey = envDefault(cfg.Session.FernetKey, "ORDERING_FERNET_KEY")
	cfg.Redis.Password = envDefault(cfg.Redis.Password, "ORDERING_REDIS_PASSWORD")
	cfg.Menu.PostgresDSN = envDefault(cfg.Menu.PostgresDSN, "ORDERING_POSTGRES_DSN")
	cfg.Providers.ASR.APIKey = envDefault(cfg.Providers.ASR.APIKey, "DEEPGRAM_API_KEY")
	cfg.Providers.Generator.APIKey = envDefault(cfg.Providers.Generator.APIKey, "OPENAI_API_KEY")
	cfg.Providers.Embeddings.APIKey = envDefault(cfg.Providers.Embeddings.APIKey, "OPENAI_API_KEY")
}

func envDefault(v, key string) string {
	if v != "" {
		return v
	}
	return os.Getenv(key)
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
