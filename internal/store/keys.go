package store

import "fmt"

// Kind names one of the per-session durable slices.
type Kind string

const (
	KindAnswers   Kind = "answers"
	KindProgress  Kind = "progress"
	KindQuestions Kind = "questions"
)

// Kinds lists every per-session slice, in migration order.
var Kinds = []Kind{KindAnswers, KindProgress, KindQuestions}

// KeyStruct produces the namespaced storage keys for session state.
// Every per-session key embeds the session id, which is the sole
// namespacing mechanism between attempts.
type KeyStruct struct{}

func NewKeyStruct() *KeyStruct {
	return &KeyStruct{}
}

// SessionKind returns the key for one durable slice of a session.
func (k *KeyStruct) SessionKind(sessionID string, kind Kind) string {
	return fmt.Sprintf("%s_%s", kind, sessionID)
}

// SavedAt returns the sibling timestamp key written next to every slice.
func (k *KeyStruct) SavedAt(sessionID string, kind Kind) string {
	return fmt.Sprintf("%s_%s_savedAt", kind, sessionID)
}

// Snapshot returns the key for the coarse one-blob attempt snapshot.
func (k *KeyStruct) Snapshot(sessionID string) string {
	return fmt.Sprintf("exam-engine:session:%s", sessionID)
}

// CurrentSession returns the cross-restart pointer to the active session id.
func (k *KeyStruct) CurrentSession() string {
	return "currentSessionId"
}

// TempSession returns the marker holding a provisional session id that has
// not yet been acknowledged by the server.
func (k *KeyStruct) TempSession() string {
	return "tempSessionId"
}

var Key = NewKeyStruct()
