package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"asr":        {"deepgram", "whisper"},
	"generator":  {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp"},
	"embeddings": {"openai"},
}

// Load reads the YAML configuration file at path. Like
// [LoadFromReader] it decodes strictly but does not validate; callers
// apply their overrides and then run [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r. Decoding is strict:
// unknown fields are an error. The result is not validated, so callers
// can layer environment fallbacks over the file before calling
// [Validate].
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	if cfg.Session.Secret == "" {
		errs = append(errs, errors.New("session.secret is required"))
	}
	if cfg.Session.FernetKey == "" {
		errs = append(errs, errors.New("session.fernet_key is required"))
	}
	if cfg.Session.TTLMinutes < 0 {
		errs = append(errs, fmt.Errorf("session.ttl_minutes %d must not be negative", cfg.Session.TTLMinutes))
	}

	if cfg.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required"))
	}

	if cfg.Menu.PostgresDSN == "" {
		slog.Warn("menu.postgres_dsn is empty; item resolution and vector retrieval will not be available")
	}
	if cfg.Menu.EmbeddingDimensions < 0 {
		errs = append(errs, fmt.Errorf("menu.embedding_dimensions %d must not be negative", cfg.Menu.EmbeddingDimensions))
	}

	validateProviderName("asr", cfg.Providers.ASR.Name)
	validateProviderName("generator", cfg.Providers.Generator.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	if cfg.Providers.ASR.Name == "" {
		slog.Warn("providers.asr is not configured; the voice socket will reject connections")
	}
	if cfg.Providers.Generator.Name == "" {
		slog.Warn("providers.generator is not configured; ordering turns cannot be answered")
	}
	if cfg.Providers.ASR.Name == "whisper" && cfg.Providers.ASR.BaseURL == "" {
		errs = append(errs, errors.New("providers.asr.base_url is required for the whisper provider"))
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Menu.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but menu.embedding_dimensions is not set; defaulting to 1536")
	}

	if cfg.Stream.Codec != "" && !cfg.Stream.Codec.IsValid() {
		errs = append(errs, fmt.Errorf("stream.codec %q is invalid; valid values: pcm, opus", cfg.Stream.Codec))
	}
	if cfg.Stream.MaxSessionSeconds < 0 {
		errs = append(errs, fmt.Errorf("stream.max_session_seconds %d must not be negative", cfg.Stream.MaxSessionSeconds))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not
// found in the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
