package persona

import "context"

// Store persists agents. Agents are read-mostly: the orchestrator loads an
// agent once per pipeline dispatch and reuses it for that pipeline's
// lifetime. Archive is a soft delete so conversation history referencing an
// archived agent stays readable.
type Store interface {
	Create(ctx context.Context, a Agent) error
	Get(ctx context.Context, id string) (Agent, error)
	List(ctx context.Context, includeArchived bool) ([]Agent, error)
	Archive(ctx context.Context, id string) error
	Close() error
}
