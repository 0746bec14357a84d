// Package types provides shared type definitions for the application.
package types

// Role identifies the speaker a committed message is attributed to.
type Role string

const (
	// RoleUser is speech recognized from the mixed input audio.
	RoleUser Role = "user"
	// RoleAssistant is text generated by the model.
	RoleAssistant Role = "assistant"
)

// Message is one committed half of a conversation turn. Messages are
// immutable once created and the history is append-only.
type Message struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
}

// Suggestion is an advisory record derived from a committed assistant turn.
// The list is ordered most-recent-first and capped.
type Suggestion struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
	Timestamp  int64   `json:"timestamp"` // Unix milliseconds
}

// SessionStatus is a snapshot of the live session state. It is a value, not
// a shared cell: readers always receive a copy.
type SessionStatus struct {
	Active     bool   `json:"active"`
	Connecting bool   `json:"connecting"`
	MicActive  bool   `json:"micActive"`
	Error      string `json:"error,omitempty"`
}

// StreamingText carries the in-progress text of the currently open turn,
// one value per direction. Both are cleared when the turn commits.
type StreamingText struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// UpdateKind discriminates Update payloads.
type UpdateKind string

const (
	UpdateStatus     UpdateKind = "status"
	UpdateStreaming  UpdateKind = "streaming"
	UpdateMessage    UpdateKind = "message"
	UpdateSuggestion UpdateKind = "suggestion"
)

// Update is pushed to the presentation layer whenever live state changes.
// Exactly one payload field is set, matching Kind.
type Update struct {
	Kind       UpdateKind     `json:"kind"`
	Status     *SessionStatus `json:"status,omitempty"`
	Streaming  *StreamingText `json:"streaming,omitempty"`
	Message    *Message       `json:"message,omitempty"`
	Suggestion *Suggestion    `json:"suggestion,omitempty"`
}
