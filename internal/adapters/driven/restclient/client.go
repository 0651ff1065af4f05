// Package restclient builds the resty clients shared by the HTTP adapters
// (Ollama, OpenAI and the hosted agent) and maps their failures onto
// domain.ExternalError.
package restclient

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// Retry policy for transient failures.
const (
	DefaultRetryCount   = 2
	DefaultRetryWait    = 200 * time.Millisecond
	DefaultRetryMaxWait = 2 * time.Second
)

// maxBodyInError bounds how much of an error body is copied into the error message.
const maxBodyInError = 512

// New returns a JSON client for baseURL. Rate-limit and 5xx replies are
// retried with backoff; other errors are returned immediately.
// Replies are decoded as JSON whatever Content-Type the server sends.
func New(baseURL string, timeout time.Duration) *resty.Client {
	return resty.New().
		OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			r.ForceContentType("application/json")
			return nil
		}).
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetRetryCount(DefaultRetryCount).
		SetRetryWaitTime(DefaultRetryWait).
		SetRetryMaxWaitTime(DefaultRetryMaxWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil || r == nil {
				return false
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		})
}

// Check turns a transport error or a non-2xx reply into an *domain.ExternalError.
func Check(service string, resp *resty.Response, err error) error {
	if err != nil {
		return domain.NewExternalError(service, err)
	}
	if resp.IsError() {
		return domain.NewExternalError(service, StatusError(resp))
	}
	return nil
}

// StatusError describes a non-2xx reply. 429 wraps domain.ErrRateLimited.
func StatusError(resp *resty.Response) error {
	body := resp.String()
	if len(body) > maxBodyInError {
		body = body[:maxBodyInError] + "..."
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		return fmt.Errorf("%w: status %d: %s", domain.ErrRateLimited, resp.StatusCode(), body)
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode(), body)
}
