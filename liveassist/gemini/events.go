package gemini

// EventType tags a session event.
type EventType string

const (
	// EventOpened signals the server accepted the setup message. The caller
	// may begin sending audio frames.
	EventOpened EventType = "opened"
	// EventInputDelta carries an incremental transcription fragment of the
	// recognized input audio.
	EventInputDelta EventType = "input_delta"
	// EventOutputDelta carries an incremental transcription fragment of the
	// generated response.
	EventOutputDelta EventType = "output_delta"
	// EventTurnComplete marks the boundary of the current turn.
	EventTurnComplete EventType = "turn_complete"
	// EventClosed signals the remote end closed the connection cleanly.
	EventClosed EventType = "closed"
	// EventError signals the connection failed. The session is unusable.
	EventError EventType = "error"
)

// Event is one tagged session event. Text is set for delta events and Err
// for error events.
type Event struct {
	Type EventType
	Text string
	Err  error
}

// decodeEvents translates one server message into zero or more session
// events, preserving arrival order.
//
// The protocol does not promise that a single message never carries both an
// input and an output transcription. If it ever does, the output branch
// takes precedence and the input fragment is dropped; this matches observed
// service behavior and is a deliberate, documented tie-break. A turn-complete
// flag on the same message is emitted after the delta.
func decodeEvents(msg serverMessage) []Event {
	if msg.SetupComplete != nil {
		return []Event{{Type: EventOpened}}
	}
	sc := msg.ServerContent
	if sc == nil {
		return nil
	}

	var events []Event
	switch {
	case sc.OutputTranscription != nil && sc.OutputTranscription.Text != "":
		events = append(events, Event{Type: EventOutputDelta, Text: sc.OutputTranscription.Text})
	case sc.InputTranscription != nil && sc.InputTranscription.Text != "":
		events = append(events, Event{Type: EventInputDelta, Text: sc.InputTranscription.Text})
	}
	if sc.TurnComplete {
		events = append(events, Event{Type: EventTurnComplete})
	}
	return events
}
