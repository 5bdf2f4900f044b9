// Package ports defines the interfaces between the application layer and its
// providers, stores, indexes and event transports.
package ports

import (
	"context"

	"github.com/ahrav/go-scorekeeper/internal/domain"
)

// ScoreProvider obtains a correctness score for one answer.
//
// A successful call returns a validated result regardless of which underlying
// provider produced it. When no provider can produce a usable score the error
// matches domain.ErrScoringFailed.
type ScoreProvider interface {
	Score(ctx context.Context, questionText, answerText string) (domain.ScoreResult, error)
}
