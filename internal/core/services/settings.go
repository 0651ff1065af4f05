package services

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyChunkSize     = "pipeline.chunk_size"
	keyChunkOverlap  = "pipeline.chunk_overlap"
	keyChapterWindow = "pipeline.chapter_window"
	keyTopK          = "pipeline.top_k"
	keyStaleAfter    = "pipeline.stale_after"
	keyConcepts      = "pipeline.concepts"
	keyEmbedProvider = "embedding.provider"
	keyEmbedModel    = "embedding.model"
	keyEmbedBaseURL  = "embedding.base_url"
	keyEmbedAPIKey   = "embedding.api_key"
	keyLLMProvider   = "llm.provider"
	keyLLMModel      = "llm.model"
	keyLLMBaseURL    = "llm.base_url"
	keyLLMAPIKey     = "llm.api_key"
	keyGraphBackend  = "graph.backend"
	keyGraphAddr     = "graph.addr"
	keyGraphPassword = "graph.password"
	keyGraphIndex    = "graph.index"
	keyAgentBaseURL  = "agent.base_url"
	keyAgentAPIKey   = "agent.api_key"
)

// Default service addresses.
const (
	defaultOllamaURL  = "http://localhost:11434"
	defaultRedisAddr  = "localhost:6379"
	defaultQdrantAddr = "localhost:6334"
)

// Environment variables that override stored settings.
//
//nolint:gosec // G101: These are variable names, not actual credentials.
const (
	EnvGraphBackend = "LECTERN_GRAPH_BACKEND"
	EnvRedisAddr    = "LECTERN_REDIS_ADDR"
	EnvQdrantAddr   = "LECTERN_QDRANT_ADDR"
	EnvGeminiAPIKey = "GEMINI_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvAgentURL     = "LECTERN_AGENT_URL"
	EnvAgentKey     = "LECTERN_AGENT_KEY"
)

// keyKind is how a setting value is parsed from text.
type keyKind int

const (
	kindString keyKind = iota
	kindInt
	kindBool
	kindDuration
	kindProvider
	kindBackend
)

// settingKeys lists every key Set accepts.
var settingKeys = map[string]keyKind{
	keyChunkSize:     kindInt,
	keyChunkOverlap:  kindInt,
	keyChapterWindow: kindInt,
	keyTopK:          kindInt,
	keyStaleAfter:    kindDuration,
	keyConcepts:      kindBool,
	keyEmbedProvider: kindProvider,
	keyEmbedModel:    kindString,
	keyEmbedBaseURL:  kindString,
	keyEmbedAPIKey:   kindString,
	keyLLMProvider:   kindProvider,
	keyLLMModel:      kindString,
	keyLLMBaseURL:    kindString,
	keyLLMAPIKey:     kindString,
	keyGraphBackend:  kindBackend,
	keyGraphAddr:     kindString,
	keyGraphPassword: kindString,
	keyGraphIndex:    kindString,
	keyAgentBaseURL:  kindString,
	keyAgentAPIKey:   kindString,
}

// SettingKeys returns the recognised setting keys in order.
func SettingKeys() []string {
	keys := make([]string, 0, len(settingKeys))
	for k := range settingKeys {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
	lookupEnv   func(string) (string, bool)
}

// NewSettingsService creates a new settings service.
// Environment overrides are read from the process environment.
func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
		lookupEnv:   os.LookupEnv,
	}
}

// Get retrieves current application settings, with environment overrides applied.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	settings := s.stored()
	s.applyEnv(settings)
	return settings, nil
}

// stored reads the settings from the config store alone.
func (s *SettingsService) stored() *domain.AppSettings {
	defaults := domain.DefaultAppSettings()

	return &domain.AppSettings{
		Pipeline: domain.PipelineSettings{
			ChunkSize:     s.getInt(keyChunkSize, defaults.Pipeline.ChunkSize),
			ChunkOverlap:  s.getInt(keyChunkOverlap, defaults.Pipeline.ChunkOverlap),
			ChapterWindow: s.getInt(keyChapterWindow, defaults.Pipeline.ChapterWindow),
			TopK:          s.getInt(keyTopK, defaults.Pipeline.TopK),
			StaleAfter:    s.getDuration(keyStaleAfter, defaults.Pipeline.StaleAfter),
			Concepts:      s.getBool(keyConcepts, defaults.Pipeline.Concepts),
		},
		Embedding: domain.EmbeddingSettings{
			Provider: s.getProvider(keyEmbedProvider, defaults.Embedding.Provider),
			Model:    s.getString(keyEmbedModel, defaults.Embedding.Model),
			BaseURL:  s.configStore.GetString(keyEmbedBaseURL), // No default - empty is valid for cloud providers
			APIKey:   s.configStore.GetString(keyEmbedAPIKey),
		},
		LLM: domain.LLMSettings{
			Provider: s.getProvider(keyLLMProvider, defaults.LLM.Provider),
			Model:    s.getString(keyLLMModel, defaults.LLM.Model),
			BaseURL:  s.configStore.GetString(keyLLMBaseURL),
			APIKey:   s.configStore.GetString(keyLLMAPIKey),
		},
		Graph: domain.GraphSettings{
			Backend:  s.getBackend(defaults.Graph.Backend),
			Addr:     s.configStore.GetString(keyGraphAddr),
			Password: s.configStore.GetString(keyGraphPassword),
			Index:    s.getString(keyGraphIndex, defaults.Graph.Index),
		},
		Agent: domain.AgentSettings{
			BaseURL: s.configStore.GetString(keyAgentBaseURL),
			APIKey:  s.configStore.GetString(keyAgentAPIKey),
		},
	}
}

// applyEnv overlays environment variables onto settings.
func (s *SettingsService) applyEnv(settings *domain.AppSettings) {
	if v, ok := s.env(EnvGraphBackend); ok {
		if backend := domain.GraphBackend(strings.ToLower(v)); backend.IsValid() {
			settings.Graph.Backend = backend
		}
	}

	switch settings.Graph.Backend {
	case domain.GraphBackendRedis:
		if v, ok := s.env(EnvRedisAddr); ok {
			settings.Graph.Addr = v
		}
		if settings.Graph.Addr == "" {
			settings.Graph.Addr = defaultRedisAddr
		}
	case domain.GraphBackendQdrant:
		if v, ok := s.env(EnvQdrantAddr); ok {
			settings.Graph.Addr = v
		}
		if settings.Graph.Addr == "" {
			settings.Graph.Addr = defaultQdrantAddr
		}
	}

	if v, ok := s.env(EnvOpenAIAPIKey); ok {
		if settings.Embedding.Provider == domain.AIProviderOpenAI && settings.Embedding.APIKey == "" {
			settings.Embedding.APIKey = v
		}
		if settings.LLM.Provider == domain.AIProviderOpenAI && settings.LLM.APIKey == "" {
			settings.LLM.APIKey = v
		}
	}
	if v, ok := s.env(EnvGeminiAPIKey); ok {
		switch {
		case settings.LLM.Provider == "":
			// A Gemini key alone is enough to enable the LLM.
			settings.LLM.Provider = domain.AIProviderGemini
			settings.LLM.Model = domain.DefaultLLMModels()[domain.AIProviderGemini]
			settings.LLM.APIKey = v
		case settings.LLM.Provider == domain.AIProviderGemini && settings.LLM.APIKey == "":
			settings.LLM.APIKey = v
		}
	}

	if v, ok := s.env(EnvAgentURL); ok {
		settings.Agent.BaseURL = v
	}
	if v, ok := s.env(EnvAgentKey); ok {
		settings.Agent.APIKey = v
	}
}

// env returns a non-empty environment variable.
func (s *SettingsService) env(name string) (string, bool) {
	if s.lookupEnv == nil {
		return "", false
	}
	v, ok := s.lookupEnv(name)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// Save persists application settings. API keys and passwords are only
// written when set, so a stored secret is never cleared by accident.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	if err := settings.Pipeline.Validate(); err != nil {
		return err
	}

	values := []struct {
		key    string
		value  any
		secret bool
	}{
		{keyChunkSize, settings.Pipeline.ChunkSize, false},
		{keyChunkOverlap, settings.Pipeline.ChunkOverlap, false},
		{keyChapterWindow, settings.Pipeline.ChapterWindow, false},
		{keyTopK, settings.Pipeline.TopK, false},
		{keyStaleAfter, settings.Pipeline.StaleAfter.String(), false},
		{keyConcepts, settings.Pipeline.Concepts, false},
		{keyEmbedProvider, settings.Embedding.Provider.String(), false},
		{keyEmbedModel, settings.Embedding.Model, false},
		{keyEmbedBaseURL, settings.Embedding.BaseURL, false},
		{keyEmbedAPIKey, settings.Embedding.APIKey, true},
		{keyLLMProvider, settings.LLM.Provider.String(), false},
		{keyLLMModel, settings.LLM.Model, false},
		{keyLLMBaseURL, settings.LLM.BaseURL, false},
		{keyLLMAPIKey, settings.LLM.APIKey, true},
		{keyGraphBackend, settings.Graph.Backend.String(), false},
		{keyGraphAddr, settings.Graph.Addr, false},
		{keyGraphPassword, settings.Graph.Password, true},
		{keyGraphIndex, settings.Graph.Index, false},
		{keyAgentBaseURL, settings.Agent.BaseURL, false},
		{keyAgentAPIKey, settings.Agent.APIKey, true},
	}

	for _, v := range values {
		if v.secret && v.value == "" {
			continue
		}
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}
	return nil
}

// Set parses value for key and stores it. Pipeline keys are validated
// together so that, for example, an overlap larger than the chunk size is refused.
func (s *SettingsService) Set(key, value string) error {
	kind, ok := settingKeys[key]
	if !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}

	parsed, err := parseSetting(kind, strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrInvalidInput, key, err)
	}

	if strings.HasPrefix(key, "pipeline.") {
		candidate := s.stored()
		applyPipeline(&candidate.Pipeline, key, parsed)
		if err := candidate.Pipeline.Validate(); err != nil {
			return err
		}
	}

	if err := s.configStore.Set(key, parsed); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Unset removes a stored key so that its default applies again.
func (s *SettingsService) Unset(key string) error {
	if _, ok := settingKeys[key]; !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}
	return s.configStore.Delete(key)
}

// parseSetting converts text into the stored representation for kind.
func parseSetting(kind keyKind, value string) (any, error) {
	switch kind {
	case kindInt:
		return strconv.Atoi(value)
	case kindBool:
		return strconv.ParseBool(value)
	case kindDuration:
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, err
		}
		return d.String(), nil
	case kindProvider:
		p := domain.AIProvider(strings.ToLower(value))
		if !p.IsValid() {
			return nil, fmt.Errorf("unknown provider %q", value)
		}
		return p.String(), nil
	case kindBackend:
		b := domain.GraphBackend(strings.ToLower(value))
		if !b.IsValid() {
			return nil, fmt.Errorf("unknown graph backend %q", value)
		}
		return b.String(), nil
	default:
		return value, nil
	}
}

// applyPipeline writes a parsed pipeline value into p.
func applyPipeline(p *domain.PipelineSettings, key string, value any) {
	switch key {
	case keyChunkSize:
		p.ChunkSize = value.(int)
	case keyChunkOverlap:
		p.ChunkOverlap = value.(int)
	case keyChapterWindow:
		p.ChapterWindow = value.(int)
	case keyTopK:
		p.TopK = value.(int)
	case keyStaleAfter:
		p.StaleAfter, _ = time.ParseDuration(value.(string))
	case keyConcepts:
		p.Concepts = value.(bool)
	}
}

// SetEmbeddingProvider configures the embedding provider.
func (s *SettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("invalid embedding provider: %s", provider)
	}
	if !slices.Contains(domain.AllEmbeddingProviders(), provider) {
		return fmt.Errorf("provider %s does not support embeddings", provider)
	}
	if provider.RequiresAPIKey() && apiKey == "" {
		return fmt.Errorf("API key required for %s", provider)
	}

	settings := s.stored()
	settings.Embedding.Provider = provider

	// Set model - use provided or default
	if model != "" {
		settings.Embedding.Model = model
	} else {
		settings.Embedding.Model = domain.DefaultEmbeddingModels()[provider]
	}

	if provider.IsLocal() {
		if settings.Embedding.BaseURL == "" {
			settings.Embedding.BaseURL = defaultOllamaURL
		}
	} else {
		settings.Embedding.BaseURL = ""
	}
	settings.Embedding.APIKey = apiKey

	return s.Save(settings)
}

// SetLLMProvider configures the LLM provider.
func (s *SettingsService) SetLLMProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("invalid LLM provider: %s", provider)
	}
	if provider.RequiresAPIKey() && apiKey == "" {
		return fmt.Errorf("API key required for %s", provider)
	}

	settings := s.stored()
	settings.LLM.Provider = provider

	if model != "" {
		settings.LLM.Model = model
	} else {
		settings.LLM.Model = domain.DefaultLLMModels()[provider]
	}

	if provider.IsLocal() {
		if settings.LLM.BaseURL == "" {
			settings.LLM.BaseURL = defaultOllamaURL
		}
	} else {
		settings.LLM.BaseURL = ""
	}
	settings.LLM.APIKey = apiKey

	return s.Save(settings)
}

// Validate checks that the effective settings can run the pipeline.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}

	if err := settings.Pipeline.Validate(); err != nil {
		return err
	}
	if !settings.Embedding.IsConfigured() {
		return fmt.Errorf("%w: embedding provider %q is not configured",
			domain.ErrEmbeddingUnavailable, settings.Embedding.Provider)
	}
	if !settings.Graph.Backend.IsValid() {
		return fmt.Errorf("%w: unknown graph backend %q", domain.ErrConfiguration, settings.Graph.Backend)
	}
	if settings.Graph.Backend.RequiresAddr() && settings.Graph.Addr == "" {
		return fmt.Errorf("%w: graph backend %s needs an address", domain.ErrConfiguration, settings.Graph.Backend)
	}
	if settings.Agent.BaseURL != "" && settings.Agent.APIKey == "" {
		return fmt.Errorf("%w: agent.base_url is set without agent.api_key", domain.ErrConfiguration)
	}
	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(&settings.Embedding)
}

// ValidateLLMConfig validates the current LLM configuration by pinging the provider.
func (s *SettingsService) ValidateLLMConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateLLM(&settings.LLM)
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetInt(key)
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	d := s.configStore.GetDuration(key)
	if d <= 0 {
		return defaultVal
	}
	return d
}

func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	provider := domain.AIProvider(val)
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}

func (s *SettingsService) getBackend(defaultVal domain.GraphBackend) domain.GraphBackend {
	backend := domain.GraphBackend(s.configStore.GetString(keyGraphBackend))
	if !backend.IsValid() {
		return defaultVal
	}
	return backend
}
