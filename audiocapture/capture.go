// Package audiocapture acquires live audio sources and mixes them into a
// single mono stream at a fixed sample rate.
//
// A session owns at most two sources: the local microphone and a system
// loopback/monitor device carrying the remote party. Each source delivers
// float32 samples in [-1, 1] through a callback on its own reader goroutine.
package audiocapture

import (
	"errors"
	"fmt"
	"sync"
)

// Role selects the acquisition profile for a source.
type Role string

const (
	// RoleMicrophone captures the local microphone with cleanup filters
	// enabled, so loudspeaker echo does not pollute local speech.
	RoleMicrophone Role = "microphone"
	// RoleSystem captures the remote party via a loopback/monitor device,
	// with all filtering disabled: the remote voice is the primary
	// transcription target and must not be altered.
	RoleSystem Role = "system"
)

// ErrPermission is returned when access to a capture device is denied or the
// device is unavailable.
var ErrPermission = errors.New("audio capture permission denied")

// ErrNoAudioTrack is returned when the system source is reachable but does
// not carry an audio stream. The wrapped message tells the user how to fix
// their device selection; this is the most common startup failure.
var ErrNoAudioTrack = errors.New("captured source has no audio track")

// ErrAlreadyCapturing is returned when starting a source that is running.
var ErrAlreadyCapturing = errors.New("already capturing audio")

// Config holds configuration for one capture source.
type Config struct {
	SampleRate int    // default 16000
	Device     string // platform device identifier; empty = platform default (microphone only)
	FFmpegPath string // capture binary; empty = resolve "ffmpeg" from PATH
	ReadChunk  int    // samples per callback, default 1024
}

// DefaultConfig returns the default capture configuration. 16 kHz mono is
// what the live transcription service expects.
func DefaultConfig() Config {
	return Config{
		SampleRate: 16000,
		ReadChunk:  1024,
	}
}

// captureImpl is the backend interface. The production backend drives an
// FFmpeg subprocess; tests substitute an in-memory fake.
type captureImpl interface {
	start(onSamples func([]float32)) error
	stop() error
}

// Source is one live audio capture handle. Lifecycle: acquired during
// session start, exclusively released during session teardown. Never shared
// across sessions.
type Source struct {
	mu        sync.Mutex
	role      Role
	cfg       Config
	impl      captureImpl
	capturing bool
}

// Open acquires a capture source for the given role. For RoleSystem a device
// must be configured and must expose an audio stream; Open fails with
// ErrNoAudioTrack otherwise, naming the corrective action.
func Open(role Role, cfg Config) (*Source, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.ReadChunk == 0 {
		cfg.ReadChunk = 1024
	}

	if role == RoleSystem && cfg.Device == "" {
		return nil, fmt.Errorf("%w: no loopback device configured; select a monitor/loopback device that carries the remote party's audio", ErrNoAudioTrack)
	}

	impl, err := newFFmpegCapture(role, cfg)
	if err != nil {
		return nil, err
	}
	return &Source{role: role, cfg: cfg, impl: impl}, nil
}

// Start begins capture, delivering sample blocks to onSamples on the
// source's reader goroutine. It returns once the backend has produced its
// first samples, so acquisition failures surface here rather than later.
func (s *Source) Start(onSamples func([]float32)) error {
	if onSamples == nil {
		return fmt.Errorf("audiocapture: nil sample handler")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capturing {
		return ErrAlreadyCapturing
	}
	if err := s.impl.start(onSamples); err != nil {
		return err
	}
	s.capturing = true
	return nil
}

// Stop releases the source. Idempotent: stopping a stopped or
// never-started source is a no-op.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.capturing {
		return nil
	}
	s.capturing = false
	return s.impl.stop()
}

// Role returns the acquisition role of this source.
func (s *Source) Role() Role { return s.role }

// SampleRate returns the configured sample rate.
func (s *Source) SampleRate() int { return s.cfg.SampleRate }

// newSourceWithImpl wires a Source around a specific backend. Used by tests.
func newSourceWithImpl(role Role, cfg Config, impl captureImpl) *Source {
	return &Source{role: role, cfg: cfg, impl: impl}
}
