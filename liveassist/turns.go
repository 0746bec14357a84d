package liveassist

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sidenote-ai/advisor/internal/types"
)

// Suggestion derivation constants. Every committed assistant turn produces
// exactly one suggestion with these fixed fields.
const (
	SuggestionTitle      = "AI Insight"
	SuggestionConfidence = 0.99

	// MaxSuggestions caps the list; the oldest entry beyond the cap is
	// discarded on insert.
	MaxSuggestions = 15
)

// Accumulator converts the stream of transcription deltas and turn-boundary
// events into committed conversation messages and derived suggestions.
//
// Per direction it keeps one append-only buffer scoped to the current turn;
// the buffer's content is always exactly the concatenation, in arrival
// order, of the deltas received since the last commit. The message history
// is append-only and survives session restarts; only the open-turn buffers
// are session-scoped.
type Accumulator struct {
	mu sync.Mutex

	inputBuf  strings.Builder
	outputBuf strings.Builder

	messages    []types.Message
	suggestions []types.Suggestion
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// AddInputDelta appends a recognized-input fragment to the open turn and
// returns the direction's current streaming value.
func (a *Accumulator) AddInputDelta(text string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inputBuf.WriteString(text)
	return a.inputBuf.String()
}

// AddOutputDelta appends a generated-output fragment to the open turn and
// returns the direction's current streaming value.
func (a *Accumulator) AddOutputDelta(text string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outputBuf.WriteString(text)
	return a.outputBuf.String()
}

// Commit is the durable result of one turn boundary.
type Commit struct {
	Messages   []types.Message  // zero, one, or two; user before assistant
	Suggestion *types.Suggestion // set iff an assistant message was committed
}

// CompleteTurn commits the open turn. For each direction whose buffer is
// non-empty after trimming, a message is appended to the history; the input
// direction commits first so the participant's speech precedes the answer
// it provoked, regardless of delta interleaving during the turn. A non-empty
// assistant commit additionally derives a suggestion prepended to the capped
// list. Both buffers are cleared; a turn with nothing buffered commits
// nothing.
func (a *Accumulator) CompleteTurn() Commit {
	a.mu.Lock()
	defer a.mu.Unlock()

	var commit Commit
	now := time.Now().UnixMilli()

	if text := strings.TrimSpace(a.inputBuf.String()); text != "" {
		msg := types.Message{
			ID:        uuid.NewString(),
			Role:      types.RoleUser,
			Text:      text,
			Timestamp: now,
		}
		a.messages = append(a.messages, msg)
		commit.Messages = append(commit.Messages, msg)
	}

	if text := strings.TrimSpace(a.outputBuf.String()); text != "" {
		msg := types.Message{
			ID:        uuid.NewString(),
			Role:      types.RoleAssistant,
			Text:      text,
			Timestamp: now,
		}
		a.messages = append(a.messages, msg)
		commit.Messages = append(commit.Messages, msg)

		sug := types.Suggestion{
			ID:         uuid.NewString(),
			Title:      SuggestionTitle,
			Content:    text,
			Confidence: SuggestionConfidence,
			Timestamp:  now,
		}
		a.suggestions = append([]types.Suggestion{sug}, a.suggestions...)
		if len(a.suggestions) > MaxSuggestions {
			a.suggestions = a.suggestions[:MaxSuggestions]
		}
		commit.Suggestion = &sug
	}

	a.inputBuf.Reset()
	a.outputBuf.Reset()
	return commit
}

// ClearStreaming discards the open-turn buffers without committing. Called
// on session teardown.
func (a *Accumulator) ClearStreaming() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inputBuf.Reset()
	a.outputBuf.Reset()
}

// Streaming returns the current in-progress text for both directions.
func (a *Accumulator) Streaming() types.StreamingText {
	a.mu.Lock()
	defer a.mu.Unlock()
	return types.StreamingText{
		Input:  a.inputBuf.String(),
		Output: a.outputBuf.String(),
	}
}

// Messages returns a copy of the committed history, oldest first.
func (a *Accumulator) Messages() []types.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]types.Message, len(a.messages))
	copy(out, a.messages)
	return out
}

// Suggestions returns a copy of the suggestion list, most recent first.
func (a *Accumulator) Suggestions() []types.Suggestion {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]types.Suggestion, len(a.suggestions))
	copy(out, a.suggestions)
	return out
}
