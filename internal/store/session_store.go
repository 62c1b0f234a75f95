package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/pmplabs/examsim/internal/model"
)

// SessionStore is the durability layer for attempt state, namespaced by
// session id. Nothing here throws across the public boundary: storage
// failures are logged and swallowed, degrading the feature to "no resume
// capability" while the in-memory session keeps working.
type SessionStore struct {
	backend Backend
	log     zerolog.Logger
	now     func() time.Time
}

// NewSessionStore wraps a Backend with the session-state key layout.
func NewSessionStore(backend Backend, log zerolog.Logger) *SessionStore {
	return &SessionStore{
		backend: backend,
		log:     log.With().Str("component", "session_store").Logger(),
		now:     time.Now,
	}
}

// Save writes value as JSON under (sessionID, kind) plus the sibling savedAt
// timestamp. Serialization or backend failures are swallowed.
func (s *SessionStore) Save(ctx context.Context, sessionID string, kind Kind, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		s.log.Warn().Err(err).Str("kind", string(kind)).Msg("Serialize failed, state not persisted")
		return
	}

	if err := s.backend.Set(ctx, Key.SessionKind(sessionID, kind), raw); err != nil {
		s.log.Warn().Err(err).Str("kind", string(kind)).Msg("Persist failed, state not persisted")
		return
	}

	savedAt := strconv.FormatInt(s.now().UnixMilli(), 10)
	if err := s.backend.Set(ctx, Key.SavedAt(sessionID, kind), []byte(savedAt)); err != nil {
		s.log.Warn().Err(err).Str("kind", string(kind)).Msg("SavedAt write failed")
	}
}

// Load reads the slice stored under (sessionID, kind) into dst. Returns false
// when the value is missing or malformed — both are treated as absent.
func (s *SessionStore) Load(ctx context.Context, sessionID string, kind Kind, dst any) bool {
	raw, err := s.backend.Get(ctx, Key.SessionKind(sessionID, kind))
	if err != nil {
		s.log.Warn().Err(err).Str("kind", string(kind)).Msg("Load failed, treating as absent")
		return false
	}
	if raw == nil {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.log.Warn().Err(err).Str("kind", string(kind)).Msg("Malformed stored state, treating as absent")
		return false
	}
	return true
}

// SavedAt returns the timestamp of the last successful Save for the slice,
// or zero time when none is recorded.
func (s *SessionStore) SavedAt(ctx context.Context, sessionID string, kind Kind) time.Time {
	raw, err := s.backend.Get(ctx, Key.SavedAt(sessionID, kind))
	if err != nil || raw == nil {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Migrate copies every (kind, savedAt) pair from oldID to newID and deletes
// the originals. Each kind migrates independently: failure on one does not
// block the others, and a second call is a no-op because the source keys are
// gone.
func (s *SessionStore) Migrate(ctx context.Context, oldID, newID string) {
	for _, kind := range Kinds {
		s.migrateKind(ctx, oldID, newID, kind)
	}

	// The coarse snapshot moves with the fine-grained slices.
	if raw, err := s.backend.Get(ctx, Key.Snapshot(oldID)); err == nil && raw != nil {
		if err := s.backend.Set(ctx, Key.Snapshot(newID), raw); err == nil {
			_ = s.backend.Del(ctx, Key.Snapshot(oldID))
		}
	}
}

func (s *SessionStore) migrateKind(ctx context.Context, oldID, newID string, kind Kind) {
	oldKey := Key.SessionKind(oldID, kind)
	oldAt := Key.SavedAt(oldID, kind)

	raw, err := s.backend.Get(ctx, oldKey)
	if err != nil {
		s.log.Warn().Err(err).Str("kind", string(kind)).Msg("Migrate read failed, kind skipped")
		return
	}
	if raw == nil {
		return // Nothing stored for this kind — already migrated or never saved.
	}

	if err := s.backend.Set(ctx, Key.SessionKind(newID, kind), raw); err != nil {
		s.log.Warn().Err(err).Str("kind", string(kind)).Msg("Migrate write failed, kind skipped")
		return
	}

	if at, err := s.backend.Get(ctx, oldAt); err == nil && at != nil {
		_ = s.backend.Set(ctx, Key.SavedAt(newID, kind), at)
	}

	// Delete sources only after the copy landed.
	if err := s.backend.Del(ctx, oldKey, oldAt); err != nil {
		s.log.Warn().Err(err).Str("kind", string(kind)).Msg("Migrate cleanup failed")
	}
}

// Clear removes every durable slice of the session, the sibling timestamps
// and the coarse snapshot. Invoked only on terminal submission.
func (s *SessionStore) Clear(ctx context.Context, sessionID string) {
	keys := make([]string, 0, len(Kinds)*2+1)
	for _, kind := range Kinds {
		keys = append(keys, Key.SessionKind(sessionID, kind), Key.SavedAt(sessionID, kind))
	}
	keys = append(keys, Key.Snapshot(sessionID))

	if err := s.backend.Del(ctx, keys...); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("Clear failed")
	}
}

// CurrentSessionID returns the cross-restart pointer to the active session,
// or "" when none is recorded.
func (s *SessionStore) CurrentSessionID(ctx context.Context) string {
	raw, err := s.backend.Get(ctx, Key.CurrentSession())
	if err != nil || raw == nil {
		return ""
	}
	return string(raw)
}

// SetCurrentSessionID updates the active-session pointer. Called as the last
// step of identity migration so any flush issued afterwards observes the new
// id.
func (s *SessionStore) SetCurrentSessionID(ctx context.Context, sessionID string) {
	if err := s.backend.Set(ctx, Key.CurrentSession(), []byte(sessionID)); err != nil {
		s.log.Warn().Err(err).Msg("Current session pointer write failed")
	}
}

// TempSessionID returns the recorded provisional session id, or "".
func (s *SessionStore) TempSessionID(ctx context.Context) string {
	raw, err := s.backend.Get(ctx, Key.TempSession())
	if err != nil || raw == nil {
		return ""
	}
	return string(raw)
}

// SetTempSessionID records a provisional session id.
func (s *SessionStore) SetTempSessionID(ctx context.Context, sessionID string) {
	if err := s.backend.Set(ctx, Key.TempSession(), []byte(sessionID)); err != nil {
		s.log.Warn().Err(err).Msg("Temp session marker write failed")
	}
}

// ClearSessionPointers removes both the current and provisional id markers.
func (s *SessionStore) ClearSessionPointers(ctx context.Context) {
	if err := s.backend.Del(ctx, Key.CurrentSession(), Key.TempSession()); err != nil {
		s.log.Warn().Err(err).Msg("Session pointer cleanup failed")
	}
}

// ClearTempSessionID removes only the provisional id marker, so a stale
// provisional id is never reused after a successful migration.
func (s *SessionStore) ClearTempSessionID(ctx context.Context) {
	if err := s.backend.Del(ctx, Key.TempSession()); err != nil {
		s.log.Warn().Err(err).Msg("Temp session marker cleanup failed")
	}
}

// SaveSnapshot persists the coarse one-blob attempt snapshot.
func (s *SessionStore) SaveSnapshot(ctx context.Context, snap model.AttemptSnapshot) {
	raw, err := json.Marshal(snap)
	if err != nil {
		s.log.Warn().Err(err).Msg("Snapshot serialize failed")
		return
	}
	if err := s.backend.Set(ctx, Key.Snapshot(snap.SessionID), raw); err != nil {
		s.log.Warn().Err(err).Msg("Snapshot persist failed")
	}
}

// LoadSnapshot reads the coarse attempt snapshot for a session. Returns false
// when missing or malformed.
func (s *SessionStore) LoadSnapshot(ctx context.Context, sessionID string) (model.AttemptSnapshot, bool) {
	var snap model.AttemptSnapshot
	raw, err := s.backend.Get(ctx, Key.Snapshot(sessionID))
	if err != nil || raw == nil {
		return snap, false
	}
	if err := json.Unmarshal(raw, &snap); err != nil {
		s.log.Warn().Err(err).Msg("Malformed snapshot, treating as absent")
		return snap, false
	}
	return snap, true
}
