// Package session provides the actor and session identity stamped on audit
// entries.
package session

import (
	"os"

	"github.com/google/uuid"
)

// Provider returns the current actor and a session id that is stable for the
// process lifetime.
type Provider interface {
	ActorID() string
	SessionID() string
}

// Static is a Provider with a fixed actor and a session generated once.
type Static struct {
	actor   string
	session string
}

// NewStatic creates a provider. An empty actor falls back to $USER, then
// "anonymous".
func NewStatic(actor string) *Static {
	if actor == "" {
		actor = os.Getenv("USER")
	}
	if actor == "" {
		actor = "anonymous"
	}
	return &Static{
		actor:   actor,
		session: uuid.NewString(),
	}
}

// NewFixed creates a provider with both values supplied, mainly for tests.
func NewFixed(actor, sessionID string) *Static {
	return &Static{actor: actor, session: sessionID}
}

func (s *Static) ActorID() string   { return s.actor }
func (s *Static) SessionID() string { return s.session }
