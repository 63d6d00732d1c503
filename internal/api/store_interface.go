package api

import (
	"context"

	"github.com/danielkorkin/tiktok-depression-survey/internal/services"
)

// Store is the persistence the router wires into the services. The memory,
// SQLite and Postgres stores all implement it.
type Store interface {
	services.ParticipantStore
	services.SubmissionStore
	services.ConsentStore
	services.ResearchStore

	// Ping reports whether the backing database is reachable.
	Ping(ctx context.Context) error
	Close() error
}

var _ Store = (*memoryStore)(nil)
