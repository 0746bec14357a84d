package liveassist

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sidenote-ai/advisor/audiocapture"
	"github.com/sidenote-ai/advisor/liveassist/gemini"
)

type fakeSource struct {
	mu        sync.Mutex
	role      audiocapture.Role
	onSamples func([]float32)
	started   int
	stopped   bool
	startErr  error
}

func (f *fakeSource) Start(onSamples func([]float32)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.onSamples = onSamples
	f.started++
	return nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeSource) push(samples []float32) {
	f.mu.Lock()
	cb := f.onSamples
	f.mu.Unlock()
	if cb != nil {
		cb(samples)
	}
}

func (f *fakeSource) wasStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

type fakeTransport struct {
	mu         sync.Mutex
	cfg        gemini.Config
	events     chan gemini.Event
	sent       []string
	connectErr error
	closeOnce  sync.Once
	closed     bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan gemini.Event, 16)}
}

func (f *fakeTransport) Connect(context.Context) error { return f.connectErr }

func (f *fakeTransport) SendAudio(data, mimeType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeTransport) Events() <-chan gemini.Event { return f.events }

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.events)
	})
	return nil
}

func (f *fakeTransport) wasClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// testHarness wires a Service to fakes and keeps handles on them.
type testHarness struct {
	svc       *Service
	mic       *fakeSource
	system    *fakeSource
	transport *fakeTransport
	sysErr    error
}

func newHarness(t *testing.T, mutate func(*Config)) *testHarness {
	t.Helper()
	h := &testHarness{
		mic:       &fakeSource{role: audiocapture.RoleMicrophone},
		system:    &fakeSource{role: audiocapture.RoleSystem},
		transport: newFakeTransport(),
	}
	cfg := Config{
		APIKey:    "test-key",
		Model:     "models/test",
		BlockSize: 4,
		OpenSource: func(role audiocapture.Role, _ audiocapture.Config) (AudioSource, error) {
			if role == audiocapture.RoleSystem {
				if h.sysErr != nil {
					return nil, h.sysErr
				}
				return h.system, nil
			}
			return h.mic, nil
		},
		Dial: func(c gemini.Config) Transport {
			h.transport.cfg = c
			return h.transport
		},
		CheckEnvironment: func() bool { return true },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h.svc = NewService(cfg)
	return h
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func TestService_StartToActive(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if st := h.svc.Status(); !st.Connecting || st.Active {
		t.Errorf("after Start: status = %+v, want connecting", st)
	}

	h.transport.events <- gemini.Event{Type: gemini.EventOpened}
	waitFor(t, "active state", func() bool { return h.svc.Status().Active })

	if st := h.svc.Status(); !st.MicActive {
		t.Errorf("MicActive = false, want true")
	}

	h.svc.Stop()
	if st := h.svc.Status(); st.Active || st.Connecting {
		t.Errorf("after Stop: status = %+v, want idle", st)
	}
	if !h.mic.wasStopped() {
		t.Error("microphone not released on Stop")
	}
}

func TestService_SecondStartRejected(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.svc.Start(context.Background()); !errors.Is(err, ErrSessionActive) {
		t.Errorf("second Start = %v, want ErrSessionActive", err)
	}
	h.svc.Stop()
}

func TestService_MissingCredential(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.APIKey = "" })

	err := h.svc.Start(context.Background())
	if !errors.Is(err, ErrCredential) {
		t.Fatalf("Start = %v, want ErrCredential", err)
	}
	st := h.svc.Status()
	if st.Active || st.Connecting {
		t.Errorf("status = %+v, want error state", st)
	}
	if st.Error == "" {
		t.Error("status error should name the cause")
	}
	if h.mic.started != 0 {
		t.Error("no device should be touched before the credential check passes")
	}
}

func TestService_EnvironmentCheckFails(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.CheckEnvironment = func() bool { return false }
	})

	if err := h.svc.Start(context.Background()); !errors.Is(err, ErrEnvironment) {
		t.Fatalf("Start = %v, want ErrEnvironment", err)
	}
	if h.mic.started != 0 {
		t.Error("no device should be touched when the environment check fails")
	}
}

func TestService_SystemFailureReleasesMic(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.SystemDevice = "monitor0" })
	h.sysErr = audiocapture.ErrNoAudioTrack

	err := h.svc.Start(context.Background())
	if !errors.Is(err, audiocapture.ErrNoAudioTrack) {
		t.Fatalf("Start = %v, want ErrNoAudioTrack", err)
	}
	if !h.mic.wasStopped() {
		t.Error("microphone must be released when system capture fails")
	}
	if st := h.svc.Status(); st.Active || st.Connecting {
		t.Errorf("status = %+v, want error state", st)
	}
}

func TestService_ConnectFailureReleasesSources(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.SystemDevice = "monitor0" })
	h.transport.connectErr = errors.New("dial refused")

	err := h.svc.Start(context.Background())
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Start = %v, want ErrTransport", err)
	}
	if !h.mic.wasStopped() {
		t.Error("microphone must be released when connect fails")
	}
	if !h.system.wasStopped() {
		t.Error("system source must be released when connect fails")
	}
}

func TestService_FramesFlowAfterOpened(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Before the session opens, blocks must be discarded.
	h.mic.push([]float32{0.1, 0.2, 0.3, 0.4})
	if n := h.transport.sentCount(); n != 0 {
		t.Errorf("sent %d frames before open, want 0", n)
	}

	h.transport.events <- gemini.Event{Type: gemini.EventOpened}
	waitFor(t, "active state", func() bool { return h.svc.Status().Active })

	h.mic.push([]float32{0.1, 0.2, 0.3, 0.4})
	waitFor(t, "frame sent", func() bool { return h.transport.sentCount() == 1 })

	h.svc.Stop()
}

func TestService_TranscriptionFlow(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.transport.events <- gemini.Event{Type: gemini.EventOpened}
	waitFor(t, "active state", func() bool { return h.svc.Status().Active })

	h.transport.events <- gemini.Event{Type: gemini.EventInputDelta, Text: "What is "}
	h.transport.events <- gemini.Event{Type: gemini.EventInputDelta, Text: "2+2?"}
	h.transport.events <- gemini.Event{Type: gemini.EventOutputDelta, Text: "The answer is 4."}
	h.transport.events <- gemini.Event{Type: gemini.EventTurnComplete}

	waitFor(t, "turn committed", func() bool { return len(h.svc.Messages()) == 2 })

	msgs := h.svc.Messages()
	if msgs[0].Text != "What is 2+2?" {
		t.Errorf("user message = %q, want %q", msgs[0].Text, "What is 2+2?")
	}
	if msgs[1].Text != "The answer is 4." {
		t.Errorf("assistant message = %q, want %q", msgs[1].Text, "The answer is 4.")
	}

	sugs := h.svc.Suggestions()
	if len(sugs) != 1 {
		t.Fatalf("got %d suggestions, want 1", len(sugs))
	}
	if sugs[0].Content != "The answer is 4." {
		t.Errorf("suggestion content = %q, want %q", sugs[0].Content, "The answer is 4.")
	}

	if st := h.svc.Streaming(); st.Input != "" || st.Output != "" {
		t.Errorf("streaming not cleared after commit: %+v", st)
	}

	h.svc.Stop()
}

func TestService_TransportErrorThenRestart(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.transport.events <- gemini.Event{Type: gemini.EventOpened}
	waitFor(t, "active state", func() bool { return h.svc.Status().Active })

	h.transport.events <- gemini.Event{Type: gemini.EventError, Err: errors.New("connection reset")}
	waitFor(t, "error state", func() bool {
		st := h.svc.Status()
		return !st.Active && st.Error != ""
	})

	mic := h.mic
	waitFor(t, "microphone release", func() bool { return mic.wasStopped() })

	// A new session is allowed from the error state.
	h.transport = newFakeTransport()
	h.mic = &fakeSource{role: audiocapture.RoleMicrophone}
	if err := h.svc.Start(context.Background()); err != nil {
		t.Fatalf("restart after error: %v", err)
	}
	if st := h.svc.Status(); st.Error != "" {
		t.Errorf("restart should clear the previous error, got %q", st.Error)
	}
	h.svc.Stop()
}

func TestService_HistorySurvivesRestart(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.transport.events <- gemini.Event{Type: gemini.EventOpened}
	waitFor(t, "active state", func() bool { return h.svc.Status().Active })

	h.transport.events <- gemini.Event{Type: gemini.EventInputDelta, Text: "hello"}
	h.transport.events <- gemini.Event{Type: gemini.EventTurnComplete}
	waitFor(t, "message committed", func() bool { return len(h.svc.Messages()) == 1 })

	// An open, uncommitted turn is discarded by teardown.
	h.transport.events <- gemini.Event{Type: gemini.EventInputDelta, Text: "half a sent"}
	waitFor(t, "streaming text", func() bool { return h.svc.Streaming().Input != "" })

	h.svc.Stop()

	if got := len(h.svc.Messages()); got != 1 {
		t.Errorf("history has %d messages after Stop, want 1", got)
	}
	if st := h.svc.Streaming(); st.Input != "" {
		t.Errorf("open turn survived Stop: %+v", st)
	}
}

// blockingTransport parks Connect until released so the caller can race
// Stop against a Start that is mid-handshake.
type blockingTransport struct {
	*fakeTransport
	entered chan struct{}
	release chan struct{}
}

func newBlockingTransport() *blockingTransport {
	return &blockingTransport{
		fakeTransport: newFakeTransport(),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
}

func (b *blockingTransport) Connect(context.Context) error {
	close(b.entered)
	<-b.release
	return nil
}

func TestService_StopDuringConnectReleasesResources(t *testing.T) {
	blocking := newBlockingTransport()
	next := newFakeTransport()
	dials := 0
	h := newHarness(t, func(c *Config) {
		c.SystemDevice = "monitor0"
		c.Dial = func(gemini.Config) Transport {
			dials++
			if dials == 1 {
				return blocking
			}
			return next
		}
	})
	firstMic := h.mic
	firstSystem := h.system

	startDone := make(chan error, 1)
	go func() { startDone <- h.svc.Start(context.Background()) }()
	<-blocking.entered

	// Both sources are live and the handshake is in flight.
	h.svc.Stop()
	if st := h.svc.Status(); st.Active || st.Connecting {
		t.Errorf("after Stop: status = %+v, want idle", st)
	}

	close(blocking.release)
	if err := <-startDone; err != nil {
		t.Fatalf("Start after concurrent Stop = %v, want nil", err)
	}

	waitFor(t, "microphone release", func() bool { return firstMic.wasStopped() })
	waitFor(t, "system release", func() bool { return firstSystem.wasStopped() })
	waitFor(t, "transport close", func() bool { return blocking.wasClosed() })

	// The stopped attempt must not have installed its handles: the same
	// controller starts again cleanly and owns its own resources.
	h.mic = &fakeSource{role: audiocapture.RoleMicrophone}
	h.system = &fakeSource{role: audiocapture.RoleSystem}
	if err := h.svc.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	next.events <- gemini.Event{Type: gemini.EventOpened}
	waitFor(t, "active state", func() bool { return h.svc.Status().Active })

	h.svc.Stop()
	if !h.mic.wasStopped() {
		t.Error("second session's microphone not released")
	}
	if firstMic.started != 1 {
		t.Errorf("first microphone started %d times, want 1", firstMic.started)
	}
}

func TestService_StopIdempotent(t *testing.T) {
	h := newHarness(t, nil)

	// Stopping a never-started service is a no-op.
	h.svc.Stop()
	h.svc.Stop()
	if st := h.svc.Status(); st.Active || st.Connecting || st.Error != "" {
		t.Errorf("status = %+v, want idle", st)
	}

	if err := h.svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.svc.Stop()
	h.svc.Stop()
	if st := h.svc.Status(); st.Active || st.Connecting {
		t.Errorf("status = %+v, want idle", st)
	}
}

func TestService_KnowledgeReachesSystemInstruction(t *testing.T) {
	h := newHarness(t, nil)
	h.svc.SetKnowledge("Our refund policy is 30 days.")

	if err := h.svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.svc.Stop()

	if !strings.Contains(h.transport.cfg.SystemInstruction, "Our refund policy is 30 days.") {
		t.Errorf("system instruction missing knowledge text:\n%s", h.transport.cfg.SystemInstruction)
	}
}

func TestService_SubscribeReceivesUpdates(t *testing.T) {
	h := newHarness(t, nil)

	ch, cancel := h.svc.Subscribe()
	defer cancel()

	if err := h.svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.svc.Stop()

	h.transport.events <- gemini.Event{Type: gemini.EventOpened}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case u := <-ch:
			if u.Status != nil && u.Status.Active {
				return // got the active status update
			}
		case <-deadline:
			t.Fatal("no active status update received")
		}
	}
}

func TestBuildSystemInstruction(t *testing.T) {
	got := BuildSystemInstruction("")
	if !strings.Contains(got, "(none provided)") {
		t.Error("empty knowledge should yield the placeholder")
	}
	got = BuildSystemInstruction("custom facts")
	if !strings.Contains(got, "custom facts") {
		t.Error("knowledge text should be substituted verbatim")
	}
	if !strings.Contains(got, "never respond to your own words") {
		t.Error("behavioral protocol missing the feedback guard rule")
	}
}
