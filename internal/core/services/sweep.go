package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
	"github.com/custodia-labs/lectern/internal/logger"
)

// DefaultStaleAfter is how long a document may stay processing before it is swept.
const DefaultStaleAfter = 10 * time.Minute

// Ensure Sweeper implements the interface.
var _ driving.SweepService = (*Sweeper)(nil)

// Sweeper moves documents stuck in processing to error.
type Sweeper struct {
	docs       driven.DocumentStore
	staleAfter time.Duration
	now        func() time.Time
}

// NewSweeper creates a sweeper. staleAfter <= 0 uses DefaultStaleAfter.
func NewSweeper(docs driven.DocumentStore, staleAfter time.Duration) *Sweeper {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Sweeper{docs: docs, staleAfter: staleAfter, now: time.Now}
}

// Sweep marks every stale processing document as error and returns them.
// A document that finished while the sweep ran is left alone.
func (s *Sweeper) Sweep(ctx context.Context) ([]domain.Document, error) {
	cutoff := s.now().Add(-s.staleAfter)
	stale, err := s.docs.ListStale(ctx, domain.StatusProcessing, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale documents: %w", err)
	}

	swept := make([]domain.Document, 0, len(stale))
	for _, doc := range stale {
		err := s.docs.TransitionStatus(ctx, doc.ID, domain.StatusProcessing, domain.StatusError)
		switch {
		case err == nil:
			doc.Status = domain.StatusError
			swept = append(swept, doc)
			logger.Warn("Document %s (%s) stuck in processing since %s, marked error",
				doc.ID, doc.Name, doc.UpdatedAt.Format(time.RFC3339))
		case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrNotFound):
			logger.Debug("Document %s changed during sweep: %v", doc.ID, err)
		default:
			return swept, fmt.Errorf("sweep %s: %w", doc.ID, err)
		}
	}
	return swept, nil
}
