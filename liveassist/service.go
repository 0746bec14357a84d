// Package liveassist coordinates audio capture, the live transcription
// session, and turn accumulation into a conversation history with derived
// suggestions.
package liveassist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sidenote-ai/advisor/audiocapture"
	"github.com/sidenote-ai/advisor/internal/metrics"
	"github.com/sidenote-ai/advisor/internal/types"
	"github.com/sidenote-ai/advisor/liveassist/gemini"
)

// State is the session controller state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Transport is the duplex connection to the live AI service.
// *gemini.Client is the production implementation.
type Transport interface {
	Connect(ctx context.Context) error
	SendAudio(data, mimeType string) error
	Events() <-chan gemini.Event
	Close() error
}

// AudioSource is one live capture handle. *audiocapture.Source is the
// production implementation.
type AudioSource interface {
	Start(onSamples func([]float32)) error
	Stop() error
}

// SourceOpener acquires a capture source for a role.
type SourceOpener func(role audiocapture.Role, cfg audiocapture.Config) (AudioSource, error)

// TransportDialer builds the transport for a session.
type TransportDialer func(cfg gemini.Config) Transport

// Config holds configuration for the session controller. Zero values get
// sensible defaults; OpenSource, Dial and CheckEnvironment exist so tests
// can substitute fakes.
type Config struct {
	APIKey       string
	Model        string
	Knowledge    string // operator-supplied context for the system instruction
	MicDevice    string
	SystemDevice string // empty = microphone-only session
	SystemBoost  float64
	FFmpegPath   string
	BlockSize    int
	SampleRate   int

	OpenSource       SourceOpener
	Dial             TransportDialer
	CheckEnvironment func() bool
	Metrics          *metrics.Metrics
}

// Service is the session controller. It exclusively owns the capture
// sources, the mixer and the transport for the session's lifetime, and is
// the only writer of the session status. At most one session is alive at a
// time.
type Service struct {
	cfg     Config
	open    SourceOpener
	dial    TransportDialer
	envOK   func() bool
	metrics *metrics.Metrics
	acc     *Accumulator

	sending atomic.Bool

	mu        sync.RWMutex
	state     State
	lastErr   string
	micActive bool
	knowledge string
	gen       int // session generation, invalidates stale event loops

	mic       AudioSource
	system    AudioSource
	mixer     *audiocapture.Mixer
	transport Transport
	frames    chan Frame
	sendDone  chan struct{}

	subs    map[int]chan types.Update
	nextSub int
}

// NewService creates a session controller. No resources are acquired until
// Start.
func NewService(cfg Config) *Service {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.BlockSize == 0 {
		cfg.BlockSize = audiocapture.DefaultBlockSize
	}
	if cfg.SystemBoost == 0 {
		cfg.SystemBoost = audiocapture.DefaultSystemBoost
	}

	s := &Service{
		cfg:       cfg,
		open:      cfg.OpenSource,
		dial:      cfg.Dial,
		envOK:     cfg.CheckEnvironment,
		metrics:   cfg.Metrics,
		acc:       NewAccumulator(),
		knowledge: cfg.Knowledge,
		subs:      make(map[int]chan types.Update),
	}
	if s.open == nil {
		s.open = func(role audiocapture.Role, c audiocapture.Config) (AudioSource, error) {
			return audiocapture.Open(role, c)
		}
	}
	if s.dial == nil {
		s.dial = func(c gemini.Config) Transport { return gemini.NewClient(c) }
	}
	if s.envOK == nil {
		s.envOK = func() bool { return audiocapture.Available(cfg.FFmpegPath) }
	}
	return s
}

// Start brings up a session: credential and environment checks, capture
// acquisition, transport connect, and wiring. It returns with the session
// in the connecting state; the transition to active happens when the
// transport reports the session opened. Any failure tears down everything
// acquired so far and leaves the controller in the error state with a
// human-readable cause.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateConnecting || s.state == StateActive {
		s.mu.Unlock()
		return ErrSessionActive
	}
	// A new attempt clears the previous error.
	s.lastErr = ""
	s.state = StateConnecting
	s.gen++
	gen := s.gen
	knowledge := s.knowledge
	s.mu.Unlock()
	s.publishStatus()

	if s.cfg.APIKey == "" {
		return s.failStart(gen, ErrCredential)
	}
	if !s.envOK() {
		return s.failStart(gen, ErrEnvironment)
	}

	mixer := audiocapture.NewMixer(s.cfg.BlockSize, s.cfg.SystemBoost, s.handleBlock)

	micCfg := audiocapture.Config{
		SampleRate: s.cfg.SampleRate,
		Device:     s.cfg.MicDevice,
		FFmpegPath: s.cfg.FFmpegPath,
	}
	mic, err := s.open(audiocapture.RoleMicrophone, micCfg)
	if err != nil {
		return s.failStart(gen, err)
	}
	if err := mic.Start(mixer.PushMic); err != nil {
		return s.failStart(gen, err)
	}

	var system AudioSource
	if s.cfg.SystemDevice != "" {
		sysCfg := audiocapture.Config{
			SampleRate: s.cfg.SampleRate,
			Device:     s.cfg.SystemDevice,
			FFmpegPath: s.cfg.FFmpegPath,
		}
		system, err = s.open(audiocapture.RoleSystem, sysCfg)
		if err == nil {
			err = system.Start(mixer.PushSystem)
		}
		if err != nil {
			// Release the already-acquired microphone before surfacing.
			_ = mic.Stop()
			return s.failStart(gen, err)
		}
	} else {
		slog.Warn("no system audio device configured, running microphone-only")
	}

	transport := s.dial(gemini.Config{
		APIKey:            s.cfg.APIKey,
		Model:             s.cfg.Model,
		SystemInstruction: BuildSystemInstruction(knowledge),
	})
	if err := transport.Connect(ctx); err != nil {
		_ = mic.Stop()
		if system != nil {
			_ = system.Stop()
		}
		return s.failStart(gen, fmt.Errorf("%w: %v", ErrTransport, err))
	}

	frames := make(chan Frame, 32)
	sendDone := make(chan struct{})

	s.mu.Lock()
	// Stop may have run while Connect was blocking. The handles acquired by
	// this attempt were never installed, so that teardown could not release
	// them; release them here instead of installing under a stale generation.
	if gen != s.gen || s.state != StateConnecting {
		s.mu.Unlock()
		_ = transport.Close()
		if system != nil {
			_ = system.Stop()
		}
		_ = mic.Stop()
		slog.Info("session stopped during connect, released capture resources")
		return nil
	}
	s.mic = mic
	s.system = system
	s.mixer = mixer
	s.transport = transport
	s.frames = frames
	s.sendDone = sendDone
	s.mu.Unlock()

	go s.sendLoop(transport, frames, sendDone)
	go s.eventLoop(gen, transport)

	slog.Info("live session connecting", "model", s.cfg.Model, "system_audio", system != nil)
	return nil
}

// Stop tears the session down: transport first (best effort), then capture
// resources, then status reset. Safe to call repeatedly and when never
// started.
func (s *Service) Stop() {
	s.mu.RLock()
	gen := s.gen
	s.mu.RUnlock()
	s.teardown(gen, nil)
}

// SetKnowledge replaces the operator-supplied knowledge context. The text is
// substituted verbatim into the system instruction of the next session.
func (s *Service) SetKnowledge(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.knowledge = text
}

// Status returns a snapshot of the session status.
func (s *Service) Status() types.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return types.SessionStatus{
		Active:     s.state == StateActive,
		Connecting: s.state == StateConnecting,
		MicActive:  s.micActive,
		Error:      s.lastErr,
	}
}

// Messages returns the committed history, oldest first.
func (s *Service) Messages() []types.Message { return s.acc.Messages() }

// Suggestions returns the suggestion list, most recent first.
func (s *Service) Suggestions() []types.Suggestion { return s.acc.Suggestions() }

// Streaming returns the in-progress text of the open turn.
func (s *Service) Streaming() types.StreamingText { return s.acc.Streaming() }

// Subscribe registers for live updates. The returned cancel func must be
// called to release the subscription. Slow consumers lose updates rather
// than stalling the session.
func (s *Service) Subscribe() (<-chan types.Update, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan types.Update, 32)
	s.subs[id] = ch
	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// handleBlock is the mixer tap: one mixed block in, one frame queued for
// sending. It runs on the microphone reader's goroutine and must not block,
// so the frame goes into a bounded queue drained by the send loop; frames
// are dropped, never reordered, under backpressure. Nothing is sent before
// the transport reports the session opened.
func (s *Service) handleBlock(samples []float32) {
	if !s.sending.Load() {
		return
	}
	frame := EncodeFrame(samples)

	s.mu.RLock()
	frames := s.frames
	s.mu.RUnlock()
	if frames == nil {
		return
	}
	select {
	case frames <- frame:
	default:
		slog.Debug("frame queue full, dropping block")
	}
}

func (s *Service) sendLoop(t Transport, frames <-chan Frame, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case f := <-frames:
			if err := t.SendAudio(f.Data, f.MimeType); err != nil {
				slog.Debug("send frame", "error", err)
				continue
			}
			if s.metrics != nil {
				s.metrics.FramesSent.Inc()
			}
		}
	}
}

// eventLoop is the single consumer of the transport's tagged event stream.
// The accumulator is only touched from here, so delta ordering and commit
// ordering follow event arrival order exactly.
func (s *Service) eventLoop(gen int, t Transport) {
	for ev := range t.Events() {
		switch ev.Type {
		case gemini.EventOpened:
			s.onOpened(gen)
		case gemini.EventInputDelta:
			s.acc.AddInputDelta(ev.Text)
			s.publishStreaming()
		case gemini.EventOutputDelta:
			s.acc.AddOutputDelta(ev.Text)
			s.publishStreaming()
		case gemini.EventTurnComplete:
			s.commitTurn()
		case gemini.EventError:
			slog.Error("live session failed", "error", ev.Err)
			s.teardown(gen, fmt.Errorf("%w: %v", ErrTransport, ev.Err))
			return
		case gemini.EventClosed:
			slog.Info("live session closed by server")
			s.teardown(gen, nil)
			return
		}
	}
}

func (s *Service) onOpened(gen int) {
	s.mu.Lock()
	if gen != s.gen || s.state != StateConnecting {
		s.mu.Unlock()
		return
	}
	s.state = StateActive
	s.micActive = true
	s.mu.Unlock()

	s.sending.Store(true)
	if s.metrics != nil {
		s.metrics.SessionActive.Set(1)
	}
	s.publishStatus()
	slog.Info("live session active")
}

func (s *Service) commitTurn() {
	commit := s.acc.CompleteTurn()
	for i := range commit.Messages {
		s.publish(types.Update{Kind: types.UpdateMessage, Message: &commit.Messages[i]})
	}
	if commit.Suggestion != nil {
		s.publish(types.Update{Kind: types.UpdateSuggestion, Suggestion: commit.Suggestion})
	}
	s.publishStreaming()

	if s.metrics != nil {
		s.metrics.TurnsCompleted.Inc()
		s.metrics.MessagesCommitted.Add(float64(len(commit.Messages)))
		if commit.Suggestion != nil {
			s.metrics.SuggestionsCreated.Inc()
		}
	}
}

// failStart records a startup failure and surfaces it. The partially-built
// session was already released by the caller.
func (s *Service) failStart(gen int, err error) error {
	s.mu.Lock()
	if gen == s.gen {
		s.state = StateError
		s.lastErr = err.Error()
		s.micActive = false
	}
	s.mu.Unlock()
	s.publishStatus()
	if s.metrics != nil {
		s.metrics.SessionErrors.Inc()
	}
	return err
}

// teardown releases everything in reverse acquisition order. Its own
// internal errors are logged and swallowed so a close failure never masks
// the original cause or prevents resource release. Stale generations are
// ignored, which makes teardown safe against late transport events after a
// restart.
func (s *Service) teardown(gen int, cause error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.sending.Store(false)
	transport := s.transport
	mic := s.mic
	system := s.system
	mixer := s.mixer
	sendDone := s.sendDone
	s.transport = nil
	s.mic = nil
	s.system = nil
	s.mixer = nil
	s.frames = nil
	s.sendDone = nil
	s.micActive = false
	if cause != nil {
		s.state = StateError
		s.lastErr = cause.Error()
	} else {
		s.state = StateIdle
	}
	s.mu.Unlock()

	if sendDone != nil {
		close(sendDone)
	}
	if transport != nil {
		if err := transport.Close(); err != nil {
			slog.Error("close transport", "error", err)
		}
	}
	if system != nil {
		_ = system.Stop()
	}
	if mic != nil {
		_ = mic.Stop()
	}
	if mixer != nil {
		mixer.Reset()
	}
	s.acc.ClearStreaming()

	if s.metrics != nil {
		s.metrics.SessionActive.Set(0)
		if cause != nil {
			s.metrics.SessionErrors.Inc()
		}
	}
	s.publishStatus()
	s.publishStreaming()
}

func (s *Service) publish(u types.Update) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- u:
		default:
			// Slow subscriber, drop.
		}
	}
}

func (s *Service) publishStatus() {
	st := s.Status()
	s.publish(types.Update{Kind: types.UpdateStatus, Status: &st})
}

func (s *Service) publishStreaming() {
	st := s.acc.Streaming()
	s.publish(types.Update{Kind: types.UpdateStreaming, Streaming: &st})
}
