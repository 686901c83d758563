package ports

import (
	"context"

	"github.com/surreyclinic/intake/pkg/domain"
)

// SessionStore defines the interface for persisting session state.
// A store must return independent copies: mutating a loaded session must not
// affect what a subsequent Load returns until Save is called.
type SessionStore interface {
	// Save persists the session keyed by its ID.
	Save(ctx context.Context, sess *domain.Session) error

	// Load retrieves a session by ID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*domain.Session, error)

	// Delete removes the session. Deleting a missing session is not an error.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of stored sessions.
	List(ctx context.Context) ([]string, error)
}
