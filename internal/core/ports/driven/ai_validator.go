package driven

import "github.com/custodia-labs/lectern/internal/core/domain"

// AIConfigValidator checks a provider configuration against the live provider
// before the settings wizard reports it as usable. An unconfigured provider
// is not an error.
type AIConfigValidator interface {
	ValidateEmbedding(config *domain.EmbeddingSettings) error
	ValidateLLM(config *domain.LLMSettings) error
}
