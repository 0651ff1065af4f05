package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/custodia-labs/lectern/internal/adapters/driven/agent"
	"github.com/custodia-labs/lectern/internal/adapters/driven/ai"
	"github.com/custodia-labs/lectern/internal/adapters/driven/config/file"
	qdrantgraph "github.com/custodia-labs/lectern/internal/adapters/driven/graph/qdrant"
	redisgraph "github.com/custodia-labs/lectern/internal/adapters/driven/graph/redis"
	"github.com/custodia-labs/lectern/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/lectern/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/core/services"
	"github.com/custodia-labs/lectern/internal/logger"
	"github.com/custodia-labs/lectern/internal/normalisers/pdf"
	"github.com/custodia-labs/lectern/internal/postprocessors/chunker"
)

// appOptions selects where state lives.
type appOptions struct {
	// DataDir holds config.toml and data/. Empty means ~/.lectern.
	DataDir string

	// Ephemeral keeps configuration, records and the graph in memory.
	Ephemeral bool
}

// app owns every adapter built for one invocation.
type app struct {
	services *Services

	// closers run in reverse registration order on Close.
	closers []func() error
}

// Close releases the adapters, most recently opened first.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func openSettings(opts appOptions) (*services.SettingsService, error) {
	var store driven.ConfigStore
	if opts.Ephemeral {
		store = memory.NewConfigStore()
	} else {
		fileStore, err := file.NewConfigStore(opts.DataDir)
		if err != nil {
			return nil, err
		}
		store = fileStore
	}
	return services.NewSettingsService(store, ai.NewConfigValidator()), nil
}

// newApp builds every adapter selected by the settings and the services on top of them.
// Missing AI providers degrade: uploads then fail with ErrEmbeddingUnavailable and
// chapters fall back to local summaries, but listing and deletion still work.
func newApp(ctx context.Context, opts appOptions) (_ *app, err error) {
	settingsSvc, err := openSettings(opts)
	if err != nil {
		return nil, fmt.Errorf("open settings: %w", err)
	}
	cfg, err := settingsSvc.Get()
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if err := cfg.Pipeline.Validate(); err != nil {
		return nil, err
	}

	built := &app{}
	defer func() {
		if err != nil {
			_ = built.Close()
		}
	}()

	docs, questions, sqliteStore, err := built.openRecords(opts)
	if err != nil {
		return nil, err
	}

	graph, err := built.openGraph(ctx, cfg.Graph, sqliteStore)
	if err != nil {
		return nil, err
	}

	embedder := built.openEmbedder(ctx, &cfg.Embedding)
	llm := built.openLLM(ctx, &cfg.LLM)

	var (
		summariser driven.Summariser
		generator  driven.QuestionGenerator
		validator  driven.AnswerValidator
		concepts   driven.ConceptExtractor
	)
	switch {
	case cfg.Agent.IsConfigured():
		client, err := agent.New(agent.Config{BaseURL: cfg.Agent.BaseURL, APIKey: cfg.Agent.APIKey})
		if err != nil {
			return nil, fmt.Errorf("agent client: %w", err)
		}
		summariser, generator, validator = client, client, client
		logger.Debug("Using agent service at %s", cfg.Agent.BaseURL)
	case llm != nil:
		summariser = ai.NewSummariser(llm)
		generator = ai.NewQuestionGenerator(llm)
		validator = ai.NewAnswerValidator(llm)
	}
	if llm != nil && cfg.Pipeline.Concepts {
		concepts = ai.NewConceptExtractor(llm)
	}

	splitter, err := chunker.New(
		chunker.WithChunkSize(cfg.Pipeline.ChunkSize),
		chunker.WithOverlap(cfg.Pipeline.ChunkOverlap),
	)
	if err != nil {
		return nil, err
	}

	segmenter, err := services.NewChapterSegmenter(summariser, services.ChapterOptions{
		WindowSize: cfg.Pipeline.ChapterWindow,
	})
	if err != nil {
		return nil, err
	}

	indexer := services.NewIndexer(graph, embedder, concepts, services.DefaultIndexerOptions())
	retriever := services.NewRetriever(docs, graph, embedder)

	built.services = &Services{
		Upload:    services.NewUploadService(docs, graph, pdf.New(), splitter, segmenter, indexer),
		Document:  services.NewDocumentService(docs, graph),
		Retrieval: retriever,
		Question:  services.NewQuestionService(docs, questions, graph, retriever, generator, validator),
		Settings:  settingsSvc,
		Sweep:     services.NewSweeper(docs, cfg.Pipeline.StaleAfter),
	}
	return built, nil
}

// openRecords opens the relational store. The sqlite store is returned so the
// sqlite graph can share its database.
func (a *app) openRecords(opts appOptions) (driven.DocumentStore, driven.QuestionStore, *sqlite.Store, error) {
	if opts.Ephemeral {
		store := memory.NewDocumentStore()
		return store, store, nil, nil
	}

	dir := opts.DataDir
	if dir == "" {
		base, err := file.DefaultDir()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("resolve data directory: %w", err)
		}
		dir = base
	}

	store, err := sqlite.NewStore(filepath.Join(dir, "data"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	return store.DocumentStore(), store.QuestionStore(), store, nil
}

// openGraph connects the configured backend. The sqlite backend falls back to
// memory when records are ephemeral.
func (a *app) openGraph(ctx context.Context, cfg domain.GraphSettings, store *sqlite.Store) (driven.ChunkGraph, error) {
	var graph driven.ChunkGraph
	switch cfg.Backend {
	case domain.GraphBackendMemory:
		graph = memory.NewChunkGraph()
	case domain.GraphBackendSQLite:
		if store == nil {
			graph = memory.NewChunkGraph()
			break
		}
		graph = store.ChunkGraph()
	case domain.GraphBackendRedis:
		g, err := redisgraph.New(ctx, redisgraph.Config{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			Index:    cfg.Index,
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		graph = g
	case domain.GraphBackendQdrant:
		g, err := qdrantgraph.New(qdrantgraph.Config{
			Addr:   cfg.Addr,
			APIKey: cfg.Password,
			Index:  cfg.Index,
		})
		if err != nil {
			return nil, fmt.Errorf("connect qdrant: %w", err)
		}
		graph = g
	default:
		return nil, fmt.Errorf("%w: unknown graph backend %q", domain.ErrConfiguration, cfg.Backend)
	}

	logger.Debug("Graph backend: %s", cfg.Backend)
	a.closers = append(a.closers, graph.Close)
	return graph, nil
}

func (a *app) openEmbedder(ctx context.Context, cfg *domain.EmbeddingSettings) driven.EmbeddingService {
	embedder, err := ai.CreateAndValidateEmbeddingService(ctx, cfg)
	if err != nil {
		logger.Warn("Embeddings disabled: %v", err)
		return nil
	}
	logger.Debug("Embeddings: %s (%d dimensions)", embedder.ModelName(), embedder.Dimensions())
	a.closers = append(a.closers, embedder.Close)
	return embedder
}

func (a *app) openLLM(ctx context.Context, cfg *domain.LLMSettings) driven.LLMService {
	llm, err := ai.CreateAndValidateLLMService(ctx, cfg)
	if err != nil {
		logger.Warn("LLM disabled: %v", err)
		return nil
	}
	if llm == nil {
		logger.Debug("No LLM configured, using local chapter summaries")
		return nil
	}
	logger.Debug("LLM: %s", llm.ModelName())
	a.closers = append(a.closers, llm.Close)
	return llm
}
