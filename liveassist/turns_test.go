package liveassist

import (
	"fmt"
	"testing"

	"github.com/sidenote-ai/advisor/internal/types"
)

func TestAccumulator_DeltaConcatenation(t *testing.T) {
	a := NewAccumulator()

	a.AddInputDelta("What ")
	a.AddInputDelta("is ")
	got := a.AddInputDelta("2+2?")
	if got != "What is 2+2?" {
		t.Errorf("streaming input = %q, want %q", got, "What is 2+2?")
	}

	st := a.Streaming()
	if st.Input != "What is 2+2?" {
		t.Errorf("Streaming().Input = %q, want %q", st.Input, "What is 2+2?")
	}
	if st.Output != "" {
		t.Errorf("Streaming().Output = %q, want empty", st.Output)
	}
}

func TestAccumulator_UserTurnCommit(t *testing.T) {
	a := NewAccumulator()
	a.AddInputDelta("What is ")
	a.AddInputDelta("2+2? ")

	commit := a.CompleteTurn()

	if len(commit.Messages) != 1 {
		t.Fatalf("committed %d messages, want 1", len(commit.Messages))
	}
	msg := commit.Messages[0]
	if msg.Role != types.RoleUser {
		t.Errorf("Role = %q, want %q", msg.Role, types.RoleUser)
	}
	if msg.Text != "What is 2+2?" {
		t.Errorf("Text = %q, want %q (trimmed)", msg.Text, "What is 2+2?")
	}
	if msg.ID == "" {
		t.Error("ID should not be empty")
	}
	if msg.Timestamp == 0 {
		t.Error("Timestamp should be set")
	}
	if commit.Suggestion != nil {
		t.Error("user-only turn should not derive a suggestion")
	}

	st := a.Streaming()
	if st.Input != "" || st.Output != "" {
		t.Errorf("buffers not cleared after commit: %+v", st)
	}
}

func TestAccumulator_AssistantTurnDerivesSuggestion(t *testing.T) {
	a := NewAccumulator()
	a.AddOutputDelta("The answer ")
	a.AddOutputDelta("is 4.")

	commit := a.CompleteTurn()

	if len(commit.Messages) != 1 {
		t.Fatalf("committed %d messages, want 1", len(commit.Messages))
	}
	if commit.Messages[0].Role != types.RoleAssistant {
		t.Errorf("Role = %q, want %q", commit.Messages[0].Role, types.RoleAssistant)
	}
	if commit.Suggestion == nil {
		t.Fatal("assistant turn should derive a suggestion")
	}
	sug := commit.Suggestion
	if sug.Title != SuggestionTitle {
		t.Errorf("Title = %q, want %q", sug.Title, SuggestionTitle)
	}
	if sug.Confidence != SuggestionConfidence {
		t.Errorf("Confidence = %v, want %v", sug.Confidence, SuggestionConfidence)
	}
	if sug.Content != "The answer is 4." {
		t.Errorf("Content = %q, want %q", sug.Content, "The answer is 4.")
	}
}

func TestAccumulator_EmptyTurnCommitsNothing(t *testing.T) {
	a := NewAccumulator()
	a.AddInputDelta("   ")

	commit := a.CompleteTurn()

	if len(commit.Messages) != 0 {
		t.Errorf("committed %d messages, want 0", len(commit.Messages))
	}
	if commit.Suggestion != nil {
		t.Error("whitespace-only turn should not derive a suggestion")
	}
	if len(a.Messages()) != 0 {
		t.Errorf("history has %d messages, want 0", len(a.Messages()))
	}
}

func TestAccumulator_UserBeforeAssistant(t *testing.T) {
	a := NewAccumulator()
	// Deltas interleave arbitrarily during the turn; commit order must not.
	a.AddOutputDelta("The answer is 4.")
	a.AddInputDelta("What is 2+2?")

	commit := a.CompleteTurn()

	if len(commit.Messages) != 2 {
		t.Fatalf("committed %d messages, want 2", len(commit.Messages))
	}
	if commit.Messages[0].Role != types.RoleUser {
		t.Errorf("first message role = %q, want %q", commit.Messages[0].Role, types.RoleUser)
	}
	if commit.Messages[1].Role != types.RoleAssistant {
		t.Errorf("second message role = %q, want %q", commit.Messages[1].Role, types.RoleAssistant)
	}

	hist := a.Messages()
	if len(hist) != 2 || hist[0].Role != types.RoleUser || hist[1].Role != types.RoleAssistant {
		t.Errorf("history order wrong: %+v", hist)
	}
}

func TestAccumulator_SuggestionCapEvictsOldest(t *testing.T) {
	a := NewAccumulator()

	for i := 0; i < MaxSuggestions+3; i++ {
		a.AddOutputDelta(fmt.Sprintf("insight %d", i))
		a.CompleteTurn()
	}

	sugs := a.Suggestions()
	if len(sugs) != MaxSuggestions {
		t.Fatalf("got %d suggestions, want %d", len(sugs), MaxSuggestions)
	}
	// Most recent first.
	if sugs[0].Content != fmt.Sprintf("insight %d", MaxSuggestions+2) {
		t.Errorf("newest = %q, want %q", sugs[0].Content, fmt.Sprintf("insight %d", MaxSuggestions+2))
	}
	// The three oldest were evicted.
	oldest := sugs[len(sugs)-1]
	if oldest.Content != "insight 3" {
		t.Errorf("oldest retained = %q, want %q", oldest.Content, "insight 3")
	}
}

func TestAccumulator_ClearStreamingDiscardsOpenTurn(t *testing.T) {
	a := NewAccumulator()
	a.AddInputDelta("half a sent")
	a.AddOutputDelta("half an ans")

	a.ClearStreaming()

	st := a.Streaming()
	if st.Input != "" || st.Output != "" {
		t.Errorf("buffers survived clear: %+v", st)
	}
	if commit := a.CompleteTurn(); len(commit.Messages) != 0 {
		t.Errorf("cleared buffers still committed %d messages", len(commit.Messages))
	}
}

func TestAccumulator_HistorySurvivesClear(t *testing.T) {
	a := NewAccumulator()
	a.AddInputDelta("hello")
	a.CompleteTurn()

	a.ClearStreaming()

	if got := len(a.Messages()); got != 1 {
		t.Errorf("history has %d messages after clear, want 1", got)
	}
}

func TestAccumulator_ReturnsCopies(t *testing.T) {
	a := NewAccumulator()
	a.AddInputDelta("hello")
	a.CompleteTurn()

	msgs := a.Messages()
	msgs[0].Text = "mutated"

	if a.Messages()[0].Text != "hello" {
		t.Error("Messages() exposed internal slice")
	}
}
