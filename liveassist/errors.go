package liveassist

import "errors"

// Session startup and runtime failure taxonomy. Acquisition errors
// (permission, missing audio track) live in package audiocapture; these
// cover the controller's own preconditions and the transport.
var (
	// ErrEnvironment means required capture support is missing from the
	// execution environment. Fatal to start; the user must fix their setup.
	ErrEnvironment = errors.New("audio capture support unavailable: FFmpeg not found on this system")

	// ErrCredential means the service credential is missing or empty.
	// Checked before any device or connection is touched.
	ErrCredential = errors.New("missing Gemini API key")

	// ErrTransport means the live connection failed mid-session. The session
	// is torn down and must be restarted from scratch; there is no automatic
	// reconnect.
	ErrTransport = errors.New("live session connection failed")

	// ErrSessionActive is returned by Start while a session is connecting
	// or active.
	ErrSessionActive = errors.New("a session is already running")
)
