package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

var _ driven.AIConfigValidator = (*ConfigValidator)(nil)

// ConfigValidator builds the provider a setting describes and pings it.
type ConfigValidator struct {
	// Timeout bounds each ping. Zero means pingTimeout.
	Timeout time.Duration
}

// NewConfigValidator returns a validator using pingTimeout.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{Timeout: pingTimeout}
}

// ValidateEmbedding pings the configured embedding provider.
// Unconfigured settings are accepted.
func (v *ConfigValidator) ValidateEmbedding(settings *domain.EmbeddingSettings) error {
	if settings == nil || !settings.IsConfigured() {
		return nil
	}

	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}
	defer svc.Close()

	ctx, cancel := v.pingContext()
	defer cancel()
	if err := svc.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %s %s: %w", domain.ErrEmbeddingUnavailable, settings.Provider, settings.Model, err)
	}
	return nil
}

// ValidateLLM pings the configured LLM provider.
// Unconfigured settings are accepted.
func (v *ConfigValidator) ValidateLLM(settings *domain.LLMSettings) error {
	if settings == nil || !settings.IsConfigured() {
		return nil
	}

	ctx, cancel := v.pingContext()
	defer cancel()

	svc, err := CreateLLMService(ctx, settings)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrLLMUnavailable, err)
	}
	defer svc.Close()

	if err := svc.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %s %s: %w", domain.ErrLLMUnavailable, settings.Provider, settings.Model, err)
	}
	return nil
}

func (v *ConfigValidator) pingContext() (context.Context, context.CancelFunc) {
	timeout := v.Timeout
	if timeout <= 0 {
		timeout = pingTimeout
	}
	return context.WithTimeout(context.Background(), timeout)
}
