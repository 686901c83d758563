package ports

import (
	"context"

	"github.com/surreyclinic/intake/pkg/domain"
)

// Extractor translates a raw utterance into a TurnResult, using the current
// node's required fields as extraction hints and the record for context.
//
// Implementations must honor ctx cancellation and deadlines: the orchestrator
// bounds every call with the configured adapter timeout. They should be pure
// with respect to caller state; the record is read-only context.
//
// On failure implementations return a zero TurnResult and an error; the
// caller degrades it to domain.Degraded() rather than crashing the interview.
type Extractor interface {
	Extract(ctx context.Context, node domain.Node, utterance string, record *domain.IntakeRecord) (domain.TurnResult, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, node domain.Node, utterance string, record *domain.IntakeRecord) (domain.TurnResult, error)

// Extract implements Extractor.
func (f ExtractorFunc) Extract(ctx context.Context, node domain.Node, utterance string, record *domain.IntakeRecord) (domain.TurnResult, error) {
	return f(ctx, node, utterance, record)
}
