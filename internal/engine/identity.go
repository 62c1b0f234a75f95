package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pmplabs/examsim/internal/store"
)

// provisionalPrefix marks client-minted session ids the server has not
// acknowledged yet.
const provisionalPrefix = "tmp-"

// IdentityManager owns the provisional-to-server session id lifecycle. The
// transition is one-directional and happens at most once per attempt;
// replays of the server response are safe no-ops.
type IdentityManager struct {
	mu          sync.Mutex
	store       *store.SessionStore
	log         zerolog.Logger
	current     string
	provisional bool
}

// NewIdentityManager creates an identity manager over the session store.
func NewIdentityManager(st *store.SessionStore, log zerolog.Logger) *IdentityManager {
	return &IdentityManager{
		store: st,
		log:   log.With().Str("component", "identity").Logger(),
	}
}

// Resolve returns the working session id: the recorded current pointer if
// one survives a restart, else a recorded provisional id, else a freshly
// minted provisional id.
func (m *IdentityManager) Resolve(ctx context.Context) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != "" {
		return m.current
	}

	if id := m.store.CurrentSessionID(ctx); id != "" {
		m.current = id
		m.provisional = strings.HasPrefix(id, provisionalPrefix)
		return id
	}

	if id := m.store.TempSessionID(ctx); id != "" {
		m.current = id
		m.provisional = true
		m.store.SetCurrentSessionID(ctx, id)
		return id
	}

	id := fmt.Sprintf("%s%s", provisionalPrefix, uuid.NewString())
	m.current = id
	m.provisional = true
	m.store.SetTempSessionID(ctx, id)
	m.store.SetCurrentSessionID(ctx, id)

	m.log.Debug().Str("session_id", id).Msg("Minted provisional session id")
	return id
}

// Current returns the working session id without touching storage.
func (m *IdentityManager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// IsProvisional reports whether the working id is still client-minted.
func (m *IdentityManager) IsProvisional() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.provisional
}

// MigrateToServer adopts the server-issued session id, moving every
// namespaced slice from the old id atomically with respect to subsequent
// flushes: the current-id pointer is updated as the last step, so any flush
// issued after this call observes the new id. Calling again with the same id
// is a no-op — the select response may be processed more than once under
// retry.
func (m *IdentityManager) MigrateToServer(ctx context.Context, newID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if newID == "" || newID == m.current {
		return
	}

	oldID := m.current
	wasProvisional := m.provisional

	m.store.Migrate(ctx, oldID, newID)
	m.store.SetCurrentSessionID(ctx, newID)

	if wasProvisional {
		m.store.ClearTempSessionID(ctx)
	}

	m.current = newID
	m.provisional = false

	m.log.Info().
		Str("old_id", oldID).
		Str("new_id", newID).
		Msg("Session id migrated")
}

// Clear forgets the working id and removes both durable pointers. Called on
// terminal submission.
func (m *IdentityManager) Clear(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.store.ClearSessionPointers(ctx)
	m.current = ""
	m.provisional = false
}
