package domain

import (
	"fmt"
	"time"
)

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or LLM.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderGemini is Google Gemini cloud API.
	AIProviderGemini AIProvider = "gemini"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderGemini:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderGemini
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderGemini:
		return "Gemini (cloud)"
	default:
		return unknownDescription
	}
}

// GraphBackend selects the graph/vector store holding chunks.
type GraphBackend string

// Available graph backends.
const (
	// GraphBackendSQLite keeps chunks next to the relational tables.
	GraphBackendSQLite GraphBackend = "sqlite"

	// GraphBackendMemory keeps chunks in process memory. Nothing survives a restart.
	GraphBackendMemory GraphBackend = "memory"

	// GraphBackendRedis uses RediSearch HNSW vector indexes.
	GraphBackendRedis GraphBackend = "redis"

	// GraphBackendQdrant uses a Qdrant collection over gRPC.
	GraphBackendQdrant GraphBackend = "qdrant"
)

// IsValid returns true if the backend is recognised.
func (b GraphBackend) IsValid() bool {
	switch b {
	case GraphBackendSQLite, GraphBackendMemory, GraphBackendRedis, GraphBackendQdrant:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (b GraphBackend) String() string {
	return string(b)
}

// RequiresAddr returns true if the backend is a network service.
func (b GraphBackend) RequiresAddr() bool {
	return b == GraphBackendRedis || b == GraphBackendQdrant
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint (for Ollama).
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string
}

// IsConfigured returns true if the embedding provider is set up.
// Gemini is not an embedding provider here.
func (e EmbeddingSettings) IsConfigured() bool {
	if e.Provider != AIProviderOllama && e.Provider != AIProviderOpenAI {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// LLMSettings holds LLM provider configuration.
type LLMSettings struct {
	// Provider is the LLM service provider.
	Provider AIProvider

	// Model is the LLM model name.
	Model string

	// BaseURL is the API endpoint (for Ollama).
	BaseURL string

	// APIKey is the API key (for OpenAI/Gemini).
	APIKey string
}

// IsConfigured returns true if the LLM provider is set up.
func (l LLMSettings) IsConfigured() bool {
	if !l.Provider.IsValid() {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// PipelineSettings holds ingestion and retrieval knobs.
type PipelineSettings struct {
	// ChunkSize is the maximum chunk length in characters.
	ChunkSize int

	// ChunkOverlap is the number of characters shared by adjacent chunks.
	ChunkOverlap int

	// ChapterWindow is the number of chunks per symbolic chapter.
	ChapterWindow int

	// TopK is the default number of chunks returned by a query.
	TopK int

	// StaleAfter is how long a document may stay in processing before the sweep fails it.
	StaleAfter time.Duration

	// Concepts enables concept extraction during indexing.
	Concepts bool
}

// Validate checks the pipeline knobs before any processing starts.
func (p PipelineSettings) Validate() error {
	switch {
	case p.ChunkSize <= 0:
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrConfiguration, p.ChunkSize)
	case p.ChunkOverlap < 0:
		return fmt.Errorf("%w: chunk overlap must not be negative, got %d", ErrConfiguration, p.ChunkOverlap)
	case p.ChunkOverlap >= p.ChunkSize:
		return fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d",
			ErrConfiguration, p.ChunkOverlap, p.ChunkSize)
	case p.ChapterWindow <= 0:
		return fmt.Errorf("%w: chapter window must be positive, got %d", ErrConfiguration, p.ChapterWindow)
	case p.TopK <= 0:
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrConfiguration, p.TopK)
	case p.StaleAfter <= 0:
		return fmt.Errorf("%w: stale_after must be positive, got %s", ErrConfiguration, p.StaleAfter)
	}
	return nil
}

// GraphSettings holds graph/vector store configuration.
type GraphSettings struct {
	// Backend selects the store implementation.
	Backend GraphBackend

	// Addr is host:port for network backends.
	Addr string

	// Password authenticates against Redis. Unused by other backends.
	Password string

	// Index names the vector index (RediSearch index or Qdrant collection).
	Index string
}

// AgentSettings configures the hosted question/chapter agent service.
// When BaseURL is empty, LLM-prompted implementations are used instead.
type AgentSettings struct {
	BaseURL string
	APIKey  string
}

// IsConfigured returns true if the agent service can be called.
func (a AgentSettings) IsConfigured() bool {
	return a.BaseURL != "" && a.APIKey != ""
}

// AppSettings holds all application settings.
type AppSettings struct {
	// Pipeline holds ingestion and retrieval knobs.
	Pipeline PipelineSettings

	// Embedding holds embedding provider settings.
	Embedding EmbeddingSettings

	// LLM holds LLM provider settings.
	LLM LLMSettings

	// Graph holds graph/vector store settings.
	Graph GraphSettings

	// Agent holds hosted agent settings.
	Agent AgentSettings
}

// DefaultAppSettings returns settings with sensible defaults.
// Embedding defaults to a local Ollama all-minilm model (384 dimensions).
// The LLM is left unconfigured; summaries and concepts then fall back locally.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Pipeline: PipelineSettings{
			ChunkSize:     1000,
			ChunkOverlap:  200,
			ChapterWindow: 30,
			TopK:          5,
			StaleAfter:    10 * time.Minute,
			Concepts:      true,
		},
		Embedding: EmbeddingSettings{
			Provider: AIProviderOllama,
			Model:    "all-minilm",
		},
		LLM: LLMSettings{},
		Graph: GraphSettings{
			Backend: GraphBackendSQLite,
			Index:   "chunk_embeddings",
		},
	}
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
	}
}

// AllLLMProviders returns providers that support LLM operations.
func AllLLMProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderGemini,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "all-minilm",
		AIProviderOpenAI: "text-embedding-3-small",
	}
}

// DefaultLLMModels returns default models for each LLM provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "llama3.2",
		AIProviderOpenAI: "gpt-4o-mini",
		AIProviderGemini: "gemini-2.0-flash",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}
