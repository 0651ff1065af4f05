// Package agent calls a hosted agent service (NeuralSeek-style
// /agent/invoke endpoint) for chapter summaries, quiz questions and
// answer grading.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/custodia-labs/lectern/internal/adapters/driven/ai"
	"github.com/custodia-labs/lectern/internal/adapters/driven/restclient"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/ratelimit"
)

// Interface checks.
var (
	_ driven.Summariser        = (*Client)(nil)
	_ driven.QuestionGenerator = (*Client)(nil)
	_ driven.AnswerValidator   = (*Client)(nil)
)

const serviceName = "agent"

// Default agent names and limits.
const (
	DefaultChapterAgent   = "make_chapter"
	DefaultQuestionAgent  = "question_generator_agent"
	DefaultValidatorAgent = "answer_validator_agent"

	DefaultTimeout           = 120 * time.Second
	DefaultRequestsPerSecond = 2.0
	DefaultBurst             = 4
)

// Config holds configuration for the agent client.
type Config struct {
	// BaseURL is the agent API base URL (required).
	BaseURL string

	// APIKey is sent as a bearer token (required).
	APIKey string

	// Agent names. Empty values use the defaults.
	ChapterAgent   string
	QuestionAgent  string
	ValidatorAgent string

	// Timeout is the per-request timeout (default: 120s).
	Timeout time.Duration

	// RequestsPerSecond throttles calls (default: 2). Negative disables throttling.
	RequestsPerSecond float64
}

// Client invokes hosted agents.
type Client struct {
	client  *resty.Client
	limiter *ratelimit.Limiter
	cfg     Config
}

// invokeRequest is the /agent/invoke request body.
type invokeRequest struct {
	Agent   string         `json:"agent"`
	Query   string         `json:"query,omitempty"`
	Context string         `json:"context,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
}

// New creates an agent client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: agent base URL and API key are required", domain.ErrConfiguration)
	}
	if cfg.ChapterAgent == "" {
		cfg.ChapterAgent = DefaultChapterAgent
	}
	if cfg.QuestionAgent == "" {
		cfg.QuestionAgent = DefaultQuestionAgent
	}
	if cfg.ValidatorAgent == "" {
		cfg.ValidatorAgent = DefaultValidatorAgent
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}

	return &Client{
		client: restclient.New(strings.TrimRight(cfg.BaseURL, "/"), cfg.Timeout).SetAuthToken(cfg.APIKey),
		limiter: ratelimit.New(ratelimit.Config{
			RequestsPerSecond: cfg.RequestsPerSecond,
			BurstSize:         DefaultBurst,
		}),
		cfg: cfg,
	}, nil
}

// Summarise calls the chapter agent with the window text.
func (c *Client) Summarise(ctx context.Context, text string) (domain.ChapterSummary, error) {
	reply, err := c.invoke(ctx, invokeRequest{
		Agent:  c.cfg.ChapterAgent,
		Params: map[string]any{"chapter_text": text},
	})
	if err != nil {
		return domain.ChapterSummary{}, err
	}

	var out struct {
		Title   string `json:"title"`
		Summary string `json:"summary"`
	}
	if err := ai.DecodeReply(reply, &out); err != nil {
		return domain.ChapterSummary{}, domain.NewExternalError(serviceName, err)
	}
	if strings.TrimSpace(out.Title) == "" && strings.TrimSpace(out.Summary) == "" {
		return domain.ChapterSummary{}, domain.NewExternalError(serviceName,
			fmt.Errorf("%w: empty chapter reply", domain.ErrMalformedResponse))
	}

	return domain.ChapterSummary{
		Title:   strings.TrimSpace(out.Title),
		Summary: strings.TrimSpace(out.Summary),
	}, nil
}

// GenerateQuestion calls the question agent with the retrieved context.
func (c *Client) GenerateQuestion(ctx context.Context, req driven.QuestionRequest) (*domain.GeneratedQuestion, error) {
	qtype := req.Type
	if !qtype.IsValid() {
		qtype = domain.QuestionMultipleChoice
	}

	reply, err := c.invoke(ctx, invokeRequest{
		Agent:   c.cfg.QuestionAgent,
		Query:   req.Topic,
		Context: req.Context,
		Params:  map[string]any{"question_type": string(qtype), "format": "json"},
	})
	if err != nil {
		return nil, err
	}

	q, err := ai.ParseQuestion(reply, qtype)
	if err != nil {
		return nil, domain.NewExternalError(serviceName, err)
	}
	return q, nil
}

// ValidateAnswer calls the validator agent.
func (c *Client) ValidateAnswer(ctx context.Context, req driven.ValidationRequest) (*domain.Grade, error) {
	query := fmt.Sprintf("Question: %s\nQuestion Type: %s\nExpected Answer: %s\nStudent Answer: %s",
		req.Question, req.Type, req.CorrectAnswer, req.Answer)

	reply, err := c.invoke(ctx, invokeRequest{
		Agent:   c.cfg.ValidatorAgent,
		Query:   query,
		Context: req.Context,
		Params:  map[string]any{"question_type": string(req.Type), "temperature": 0.3, "format": "json"},
	})
	if err != nil {
		return nil, err
	}

	grade, err := ai.ParseGrade(reply)
	if err != nil {
		return nil, domain.NewExternalError(serviceName, err)
	}
	return grade, nil
}

// invoke posts req and returns the agent's reply payload as JSON text.
func (c *Client) invoke(ctx context.Context, req invokeRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", domain.NewExternalError(serviceName, err)
	}

	var out map[string]json.RawMessage
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/agent/invoke")
	if resp != nil && resp.StatusCode() == http.StatusTooManyRequests {
		c.limiter.Backoff(retryAfter(resp.Header().Get("Retry-After")))
	}
	if err := restclient.Check(serviceName, resp, err); err != nil {
		return "", err
	}

	reply, err := unwrapReply(out)
	if err != nil {
		return "", domain.NewExternalError(serviceName, err)
	}
	return reply, nil
}

// unwrapReply finds the agent output. It may sit under "answer", "output" or
// "result", either as an object or as a JSON-encoded string.
func unwrapReply(body map[string]json.RawMessage) (string, error) {
	if len(body) == 0 {
		return "", fmt.Errorf("%w: empty agent reply", domain.ErrMalformedResponse)
	}

	for _, key := range []string{"answer", "output", "result"} {
		raw, ok := body[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s, nil
		}
		return string(raw), nil
	}

	whole, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrMalformedResponse, err)
	}
	return string(whole), nil
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(header string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
