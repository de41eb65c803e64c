package nativemsg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/jmcleod/keriauth/host"
	"github.com/jmcleod/keriauth/message"
)

// Inbound event kinds, sent by the browser-side shim.
const (
	KindMessage         = "message"
	KindAlarm           = "alarm"
	KindPermissions     = "permissions"
	KindAppConnected    = "app-connected"
	KindAppDisconnected = "app-disconnected"
)

// Outbound command kinds, executed by the shim.
const (
	KindSendToTab = "send-to-tab"
	KindSendToApp = "send-to-app"
	KindOpenPopup = "open-popup"
)

// Event is one host event delivered to the dispatcher.
type Event struct {
	Kind    string          `json:"kind"`
	Message json.RawMessage `json:"message,omitempty"`
	Sender  *message.Sender `json:"sender,omitempty"`
	Alarm   string          `json:"alarm,omitempty"`
	Origins []string        `json:"origins,omitempty"`
}

// Command is one instruction from the dispatcher to the shim.
type Command struct {
	Kind    string `json:"kind"`
	TabID   *int   `json:"tabId,omitempty"`
	Message any    `json:"message,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Handler receives decoded host events.
type Handler interface {
	HandleMessage(ctx context.Context, raw []byte, sender message.Sender)
	HandleAlarm(ctx context.Context, name string)
	HandlePermissionsChanged(origins []string)
}

// Bridge is the host.Transport and host.Popup of a dispatcher running as
// a native messaging host. Commands are written to w as frames.
type Bridge struct {
	logger *slog.Logger

	mu         sync.Mutex
	w          io.Writer
	appPresent bool
}

var (
	_ host.Transport = (*Bridge)(nil)
	_ host.Popup     = (*Bridge)(nil)
)

// NewBridge returns a Bridge writing commands to w.
func NewBridge(w io.Writer, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{w: w, logger: logger}
}

func (b *Bridge) write(cmd Command) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Write(b.w, cmd)
}

func (b *Bridge) SendToTab(_ context.Context, tabID int, msg message.ToContentScript) error {
	return b.write(Command{Kind: KindSendToTab, TabID: &tabID, Message: msg})
}

// SendToApp fails with host.ErrNoListener while the shim reports no App
// surface open.
func (b *Bridge) SendToApp(_ context.Context, msg message.ToApp) error {
	b.mu.Lock()
	present := b.appPresent
	b.mu.Unlock()
	if !present {
		return host.ErrNoListener
	}
	return b.write(Command{Kind: KindSendToApp, Message: msg})
}

func (b *Bridge) Open(_ context.Context, url string) error {
	return b.write(Command{Kind: KindOpenPopup, URL: url})
}

// Serve reads events from r and hands them to h until r is exhausted, a
// framing error occurs, or ctx is canceled. A clean end of input returns
// nil. Events that decode badly are logged and skipped.
func (b *Bridge) Serve(ctx context.Context, r io.Reader, h Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame, err := Read(r)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading event: %w", err)
		}
		var ev Event
		if err := json.Unmarshal(frame, &ev); err != nil {
			b.logger.Warn("skipping undecodable event", "error", err)
			continue
		}
		b.deliver(ctx, ev, h)
	}
}

func (b *Bridge) deliver(ctx context.Context, ev Event, h Handler) {
	switch ev.Kind {
	case KindMessage:
		if ev.Sender == nil {
			b.logger.Warn("skipping message event without sender")
			return
		}
		h.HandleMessage(ctx, ev.Message, *ev.Sender)
	case KindAlarm:
		h.HandleAlarm(ctx, ev.Alarm)
	case KindPermissions:
		h.HandlePermissionsChanged(ev.Origins)
	case KindAppConnected, KindAppDisconnected:
		b.mu.Lock()
		b.appPresent = ev.Kind == KindAppConnected
		b.mu.Unlock()
		b.logger.Debug("app presence changed", "present", ev.Kind == KindAppConnected)
	default:
		b.logger.Info("skipping unknown event", "kind", ev.Kind)
	}
}
