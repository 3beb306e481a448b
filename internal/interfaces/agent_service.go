package interfaces

import (
	"context"

	"github.com/ternarybob/respondeo/internal/models"
)

// EventEmitter receives agent events in order. Emitters must be fast or
// buffer internally: the loop controller calls them synchronously so each
// state transition is flushed before the next provider call blocks.
type EventEmitter func(event models.AgentEvent) error

// AgentService answers natural-language questions against the ingested
// corpus using the iterative retrieve-synthesize-reflect loop.
type AgentService interface {
	// Ask runs the loop to completion and returns the final result.
	Ask(ctx context.Context, query *models.Query) (*models.AskResult, error)

	// AskStream runs the loop, emitting each state-transition event as it
	// happens. The final result is also carried on the terminal metadata
	// event. Cancellation of ctx abandons in-flight provider calls.
	AskStream(ctx context.Context, query *models.Query, emit EventEmitter) (*models.AskResult, error)

	// HealthCheck verifies the agent's collaborators are operational
	HealthCheck(ctx context.Context) error
}
