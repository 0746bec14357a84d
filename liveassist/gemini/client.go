// Package gemini implements the duplex WebSocket transport for the Gemini
// Live (BidiGenerateContent) protocol: one connection per session, outbound
// realtime audio chunks, inbound transcription and turn-boundary events.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultEndpoint is the Gemini Live WebSocket endpoint.
	DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	// DefaultModel is the default live model.
	DefaultModel = "models/gemini-2.0-flash-live-001"

	handshakeTimeout = 15 * time.Second
	writeTimeout     = 10 * time.Second
)

// Config holds connection settings for a live session.
type Config struct {
	APIKey            string
	Model             string
	Endpoint          string
	SystemInstruction string
}

// Client is the duplex connection to the live service. It owns exactly one
// WebSocket for the session's duration and never reconnects on its own.
type Client struct {
	cfg  Config
	conn *websocket.Conn

	events chan Event
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

// NewClient creates a client. Connect must be called before sending.
func NewClient(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Client{
		cfg:    cfg,
		events: make(chan Event, 100),
		done:   make(chan struct{}),
	}
}

// Connect dials the service and sends the session setup message. The session
// is not ready for audio until an EventOpened arrives on Events.
func (c *Client) Connect(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return fmt.Errorf("gemini: API key required")
	}

	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", c.cfg.APIKey)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("websocket dial: %w", err)
	}
	c.conn = conn

	setup := setupEnvelope{Setup: Setup{
		Model:                    c.cfg.Model,
		GenerationConfig:         &GenerationConfig{ResponseModalities: []string{"AUDIO"}},
		InputAudioTranscription:  &struct{}{},
		OutputAudioTranscription: &struct{}{},
	}}
	if c.cfg.SystemInstruction != "" {
		setup.Setup.SystemInstruction = &Content{Parts: []Part{{Text: c.cfg.SystemInstruction}}}
	}
	if err := c.writeJSON(setup); err != nil {
		_ = conn.Close()
		return fmt.Errorf("send setup: %w", err)
	}

	go c.readLoop()
	return nil
}

// SendAudio transmits one encoded audio chunk as realtime input. It is safe
// to call concurrently with other sends; it never blocks on the inbound side.
func (c *Client) SendAudio(data, mimeType string) error {
	return c.writeJSON(realtimeInputEnvelope{
		RealtimeInput: realtimeInput{
			MediaChunks: []Blob{{MimeType: mimeType, Data: data}},
		},
	})
}

// Events yields session events in arrival order. The channel is closed after
// an EventClosed or EventError has been delivered.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Close terminates the connection, best effort. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.conn != nil {
			c.writeMu.Lock()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(2*time.Second))
			c.writeMu.Unlock()
			err = c.conn.Close()
		}
		close(c.done)
	})
	return err
}

func (c *Client) writeJSON(v any) error {
	if c.closed.Load() {
		return fmt.Errorf("gemini: connection closed")
	}
	if c.conn == nil {
		return fmt.Errorf("gemini: not connected")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *Client) readLoop() {
	defer close(c.events)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.emit(Event{Type: EventClosed})
			} else {
				c.emit(Event{Type: EventError, Err: fmt.Errorf("read: %w", err)})
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Error("failed to unmarshal server message", "error", err)
			continue
		}
		if msg.GoAway != nil {
			slog.Warn("server announced shutdown", "time_left", msg.GoAway.TimeLeft)
			continue
		}

		for _, ev := range decodeEvents(msg) {
			c.emit(ev)
		}
	}
}

func (c *Client) emit(ev Event) {
	// A lost delta degrades the transcript; a lost terminal event leaves the
	// consumer believing a dead connection is alive. Terminal events wait for
	// the consumer as long as the client itself is open.
	if ev.Type == EventClosed || ev.Type == EventError {
		select {
		case c.events <- ev:
		case <-c.done:
		}
		return
	}
	select {
	case c.events <- ev:
	case <-time.After(100 * time.Millisecond):
		slog.Warn("event channel full, dropping event", "type", ev.Type)
	}
}
