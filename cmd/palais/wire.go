// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/palais-dev/palais/internal/config"
	"github.com/palais-dev/palais/internal/memory"
	"github.com/palais-dev/palais/internal/provider"
	anthropicprov "github.com/palais-dev/palais/internal/provider/anthropic"
	googleprov "github.com/palais-dev/palais/internal/provider/google"
	openaiprov "github.com/palais-dev/palais/internal/provider/openai"
	openrouterprov "github.com/palais-dev/palais/internal/provider/openrouter"
	"github.com/palais-dev/palais/internal/security/scanner"
	"github.com/palais-dev/palais/internal/server"
	"github.com/palais-dev/palais/internal/store"
	_ "github.com/palais-dev/palais/internal/store/chromem" // register chromem vector backend
	_ "github.com/palais-dev/palais/internal/store/qdrant"  // register qdrant vector backend
	_ "github.com/palais-dev/palais/internal/store/sqlite"  // register sqlite graph and vector backends
	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

const (
	openAIBaseURL        = "https://api.openai.com/v1"
	ensureCollectionWait = 10 * time.Second
)

// App holds all wired subsystems and manages their lifecycle.
type App struct {
	Server    *server.Server
	Memory    *memory.Service
	Graph     store.GraphStore
	Vectors   store.VectorIndex
	Providers *provider.Registry

	queryCache *provider.CachedEmbedder
	embedder   provider.Embedder
	completer  provider.Completer
}

// WireApp opens the stores, registers providers and builds the memory
// service and HTTP server.
func WireApp(ctx context.Context, cfg *config.Config, version string) (_ *App, err error) {
	app := &App{Providers: provider.NewRegistry()}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	app.Graph, err = store.NewGraphStore(&store.StorageConfig{
		Backend: cfg.Storage.Backend,
		DataDir: cfg.Storage.DataDir,
	})
	if err != nil {
		return nil, palaiserr.Wrap(err, palaiserr.CodeCLISetupFailure, "opening graph store")
	}

	registerProviders(cfg, app.Providers)

	if name := cfg.Memory.EmbeddingProvider; name != "" {
		if app.embedder, err = app.Providers.Embedder(name); err != nil {
			slog.Warn("embeddings disabled", "provider", name, "error", err)
			app.embedder, err = nil, nil
		}
	}
	if name := cfg.Memory.ExtractionProvider; name != "" {
		if app.completer, err = app.Providers.Completer(name); err != nil {
			slog.Warn("extraction disabled", "provider", name, "error", err)
			app.completer, err = nil, nil
		}
	}

	// Without an embedder nothing would ever be written to the index.
	var queryEmbedder provider.Embedder
	if app.embedder != nil {
		app.Vectors, err = store.NewVectorIndex(&store.VectorConfig{
			Backend:    cfg.Vector.Backend,
			URL:        cfg.Vector.URL,
			APIKey:     cfg.Vector.APIKey,
			Collection: cfg.Vector.Collection,
			Dimensions: cfg.Vector.Dimensions,
			Timeout:    cfg.Vector.Timeout,
			DataDir:    cfg.Storage.DataDir,
		})
		if err != nil {
			return nil, palaiserr.Wrap(err, palaiserr.CodeCLISetupFailure, "opening vector index")
		}
		ensureCollection(ctx, app.Vectors, cfg.Vector.Collection)

		if cfg.Memory.QueryCacheBytes > 0 {
			if app.queryCache, err = provider.NewCachedEmbedder(app.embedder, cfg.Memory.QueryCacheBytes); err != nil {
				return nil, err
			}
			queryEmbedder = app.queryCache
		}
	}

	metrics := memory.NewMetrics()
	var redactor memory.Redactor
	if cfg.Memory.RedactSecrets {
		sc, err := scanner.New()
		if err != nil {
			return nil, palaiserr.Wrap(err, palaiserr.CodeCLISetupFailure, "creating credential scanner")
		}
		redactor = sc
	} else {
		slog.Warn("credential redaction disabled: memory nodes are stored verbatim")
	}
	deps := memory.Deps{
		Graph:         app.Graph,
		Vectors:       app.Vectors,
		Embedder:      app.embedder,
		QueryEmbedder: queryEmbedder,
		Completer:     app.completer,
		Redactor:      redactor,
		Metrics:       metrics,
		Logger:        slog.Default(),
	}
	app.Memory, err = memory.NewService(deps, memoryConfig(cfg.Memory))
	if err != nil {
		return nil, palaiserr.Wrap(err, palaiserr.CodeCLISetupFailure, "creating memory service")
	}

	services, err := server.NewServices(app.Memory, app.Providers, metrics.Registry())
	if err != nil {
		return nil, palaiserr.Wrap(err, palaiserr.CodeCLISetupFailure, "creating services")
	}

	if cfg.Networking.APIToken == "" {
		slog.Warn("authentication disabled: no networking.api_token configured")
	}
	app.Server, err = server.New(server.Config{
		ListenAddr:     cfg.Networking.Listen,
		CORSOrigins:    cfg.Networking.CORSOrigins,
		TrustedProxies: cfg.Networking.TrustedProxies,
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond: cfg.Networking.RateLimit.RequestsPerSecond,
			Burst:             cfg.Networking.RateLimit.Burst,
		},
		APIToken: cfg.Networking.APIToken,
		Version:  version,
	}, services)
	if err != nil {
		return nil, palaiserr.Wrap(err, palaiserr.CodeCLISetupFailure, "creating server")
	}

	return app, nil
}

// ensureCollection creates the vector collection if it is missing. A
// failure is logged and startup continues; nodes created meanwhile can be
// re-embedded later.
func ensureCollection(ctx context.Context, idx store.VectorIndex, collection string) {
	ctx, cancel := context.WithTimeout(ctx, ensureCollectionWait)
	defer cancel()
	if err := idx.EnsureCollection(ctx); err != nil {
		slog.Warn("vector collection not ready", "collection", collection, "error", err)
	}
}

func memoryConfig(m config.MemoryConfig) memory.Config {
	return memory.Config{
		EnrichNeighbors: m.EnrichNeighbors,
		EnrichThreshold: m.EnrichThreshold,
		ExtractionModel: m.ExtractionModel,
		ExtractWindow:   m.ExtractWindow,
		MaxTriplets:     m.MaxTriplets,
		AutoExtract:     m.AutoExtract,
		Workers:         m.Workers,
		QueueSize:       m.QueueSize,
		CallTimeout:     m.CallTimeout,
		TaskTimeout:     m.TaskTimeout,
	}
}

// Start runs the HTTP server and blocks until ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	return a.Server.Start(ctx)
}

// Embeddings reports whether nodes will be embedded.
func (a *App) Embeddings() bool { return a.embedder != nil && a.Vectors != nil }

// Extraction reports whether fact extraction is available.
func (a *App) Extraction() bool { return a.completer != nil }

// Close stops the server, drains background work, then closes the stores
// and providers.
func (a *App) Close() error {
	var errs []error
	if a.Server != nil {
		errs = append(errs, a.Server.Close())
	}
	if a.Memory != nil {
		a.Memory.Close()
	}
	if a.queryCache != nil {
		a.queryCache.Close()
	}
	if a.Vectors != nil {
		errs = append(errs, a.Vectors.Close())
	}
	if a.Graph != nil {
		errs = append(errs, a.Graph.Close())
	}
	if a.Providers != nil {
		errs = append(errs, a.Providers.Close())
	}
	return errors.Join(errs...)
}

// providerFactory builds a provider from its config. embeddingModel is the
// configured memory.embedding_model, used by providers that embed.
type providerFactory func(pc config.ProviderConfig, embeddingModel string) (provider.Provider, error)

// builtinProviderFactories maps provider names to their constructors.
// Declared as a variable so tests can inject failing factories.
var builtinProviderFactories = map[string]providerFactory{
	config.ProviderLiteLLM: func(pc config.ProviderConfig, model string) (provider.Provider, error) {
		return openaiprov.New(openaiprov.Config{
			Name: config.ProviderLiteLLM, APIKey: pc.APIKey, BaseURL: pc.Endpoint,
			EmbeddingModel: model, Timeout: pc.Timeout,
		})
	},
	config.ProviderOpenAI: func(pc config.ProviderConfig, model string) (provider.Provider, error) {
		base := pc.Endpoint
		if base == "" {
			base = openAIBaseURL
		}
		return openaiprov.New(openaiprov.Config{
			Name: config.ProviderOpenAI, APIKey: pc.APIKey, BaseURL: base,
			EmbeddingModel: model, Timeout: pc.Timeout,
		})
	},
	config.ProviderAnthropic: func(pc config.ProviderConfig, _ string) (provider.Provider, error) {
		return anthropicprov.New(anthropicprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint, Timeout: pc.Timeout})
	},
	config.ProviderGoogle: func(pc config.ProviderConfig, model string) (provider.Provider, error) {
		return googleprov.New(googleprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint, EmbeddingModel: model})
	},
	config.ProviderOpenRouter: func(pc config.ProviderConfig, _ string) (provider.Provider, error) {
		return openrouterprov.New(openrouterprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint, Timeout: pc.Timeout})
	},
}

// registerProviders registers every configured provider behind a circuit
// breaker. Unknown names, missing keys and constructor failures are logged
// and skipped; the pipelines that needed the provider are then disabled.
func registerProviders(cfg *config.Config, reg *provider.Registry) {
	for name, pc := range cfg.Providers {
		// The gateway may run without authentication.
		if pc.APIKey == "" && name != config.ProviderLiteLLM {
			slog.Warn("skipping provider with empty API key", "provider", name)
			continue
		}
		factory, ok := builtinProviderFactories[name]
		if !ok {
			slog.Warn("unknown provider in config, skipping", "provider", name)
			continue
		}

		var model string
		if name == cfg.Memory.EmbeddingProvider {
			model = cfg.Memory.EmbeddingModel
		}
		p, err := factory(pc, model)
		if err != nil {
			slog.Warn("failed to create provider", "provider", name, "error", err)
			continue
		}
		if _, err := reg.Register(p, provider.DefaultBreakerConfig()); err != nil {
			slog.Warn("failed to register provider", "provider", name, "error", err)
			continue
		}
		slog.Info("registered provider", "provider", name, "capabilities", provider.CapabilitiesOf(p))
	}
}
