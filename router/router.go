// Package router dispatches inbound messages from content scripts and
// App surfaces to their handlers.
package router

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/jmcleod/keriauth/appbridge"
	"github.com/jmcleod/keriauth/host"
	"github.com/jmcleod/keriauth/internal/clock"
	"github.com/jmcleod/keriauth/message"
	"github.com/jmcleod/keriauth/signify"
	"github.com/jmcleod/keriauth/store"
	"github.com/jmcleod/keriauth/validator"
)

// DefaultPopupPath is the action popup page, relative to the extension.
const DefaultPopupPath = "index.html"

// ErrInvalidURL is returned when a request to sign names a URL that is
// not an absolute http(s) URL.
var ErrInvalidURL = errors.New("invalid url")

// ErrNoTabURL is returned when a sign-headers approval does not name the
// page that asked for it.
var ErrNoTabURL = errors.New("approval does not name the requesting page")

// Session is the part of the session manager the router drives.
type Session interface {
	ExtendIfUnlocked(ctx context.Context) error
	Lock(ctx context.Context) error
}

// Config holds the router's collaborators. All fields except PopupPath
// are required.
type Config struct {
	Validator  *validator.Validator
	Session    Session
	Correlator *appbridge.Correlator
	Transport  host.Transport
	Popup      host.Popup
	Signer     signify.Client
	Store      *store.Service
	PopupPath  string
}

// Router routes validated messages. Dispatch never returns an error: a
// failure is either reported to the originating tab or logged.
type Router struct {
	validator  *validator.Validator
	session    Session
	correlator *appbridge.Correlator
	transport  host.Transport
	popup      host.Popup
	signer     signify.Client
	store      *store.Service
	popupPath  string
	clock      clock.Clock
	logger     *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithClock sets the clock used for record timestamps.
func WithClock(c clock.Clock) Option {
	return func(r *Router) { r.clock = c }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// New returns a Router over cfg.
func New(cfg Config, opts ...Option) *Router {
	r := &Router{
		validator:  cfg.Validator,
		session:    cfg.Session,
		correlator: cfg.Correlator,
		transport:  cfg.Transport,
		popup:      cfg.Popup,
		signer:     cfg.Signer,
		store:      cfg.Store,
		popupPath:  cfg.PopupPath,
		clock:      clock.Real(),
		logger:     slog.Default(),
	}
	if r.popupPath == "" {
		r.popupPath = DefaultPopupPath
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dispatch handles one inbound message. Messages from untrusted senders
// and malformed messages are dropped without a reply.
func (r *Router) Dispatch(ctx context.Context, raw []byte, sender message.Sender) {
	typ, err := message.PeekType(raw)
	if err != nil {
		r.logger.Warn("dropping message without type", "sender_url", sender.URL, "error", err)
		return
	}
	if !r.validator.Validate(ctx, sender, raw) {
		return
	}
	if r.validator.IsFromApp(sender) {
		r.dispatchApp(ctx, typ, raw)
		return
	}
	r.dispatchContentScript(ctx, typ, raw, sender)
}

func (r *Router) dispatchApp(ctx context.Context, typ string, raw []byte) {
	logger := r.logger.With("type", typ)

	if err := r.session.ExtendIfUnlocked(ctx); err != nil {
		logger.Error("extending session", "error", err)
	}

	switch typ {
	case message.InternalLockNow, message.InternalSystemLockDetected:
		logger.Info("locking session")
		if err := r.session.Lock(ctx); err != nil {
			logger.Error("locking session", "error", err)
		}
		return
	}
	if !message.IsAppType(typ) {
		logger.Info("dropping unknown app message")
		return
	}

	msg, err := message.Decode[message.FromApp](raw)
	if err != nil {
		logger.Warn("dropping malformed app message", "error", err)
		return
	}
	if err := r.handleApp(ctx, msg); err != nil {
		logger.Error("handling app message", "request_id", msg.RequestID, "error", err)
		if msg.TabID != nil {
			r.replyError(ctx, *msg.TabID, msg.RequestID, err)
		}
	}
}

func (r *Router) handleApp(ctx context.Context, msg message.FromApp) error {
	if csType, ok := message.TranslateReply(msg.Type); ok {
		return r.forwardReply(ctx, csType, msg)
	}
	switch msg.Type {
	case message.AppReplyApprovedSignHdrs:
		return r.handleApprovedSignHeaders(ctx, msg)
	case message.AppResponse:
		r.correlator.HandleResponseFromApp(msg.RequestID, msg)
	case message.AppClosed:
		r.correlator.HandleAppClosed()
	case message.AppUserActivity:
		// The session was already extended.
	}
	return nil
}

// forwardReply sends an App reply to the tab it answers, translated to
// the content-script type.
func (r *Router) forwardReply(ctx context.Context, csType string, msg message.FromApp) error {
	if msg.TabID == nil {
		r.logger.Warn("dropping app reply without tab", "type", msg.Type, "request_id", msg.RequestID)
		return nil
	}
	out := message.ToContentScript{
		Type:      csType,
		RequestID: msg.RequestID,
		Payload:   msg.Payload,
		Error:     msg.Error,
	}
	if csType == message.BwCsReplyCanceled && out.Error == "" {
		out.Error = "canceled by user"
	}
	if err := r.transport.SendToTab(ctx, *msg.TabID, out); err != nil {
		return fmt.Errorf("forwarding to tab %d: %w", *msg.TabID, err)
	}
	return nil
}

func (r *Router) replyError(ctx context.Context, tabID int, requestID string, cause error) {
	err := r.transport.SendToTab(ctx, tabID, message.ToContentScript{
		Type:      message.BwCsReplyCanceled,
		RequestID: requestID,
		Error:     cause.Error(),
	})
	if err != nil {
		r.logger.Warn("sending error reply", "tab_id", tabID, "request_id", requestID, "error", err)
	}
}

// popupRequest is the request the action popup is opened with.
type popupRequest struct {
	Type             string          `json:"type"`
	RequestID        string          `json:"requestId,omitempty"`
	TabID            *int            `json:"tabId,omitempty"`
	TabURL           string          `json:"tabUrl"`
	Origin           string          `json:"origin"`
	RememberedPrefix string          `json:"rememberedPrefix,omitempty"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}

func (r *Router) openPopup(ctx context.Context, req popupRequest) error {
	encoded, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding popup request: %w", err)
	}
	target := r.popupPath + "?message=" + base64.RawURLEncoding.EncodeToString(encoded)
	if err := r.popup.Open(ctx, target); err != nil {
		return fmt.Errorf("opening action popup: %w", err)
	}
	return nil
}

// DecodePopupURL returns the request encoded into an action popup URL.
func DecodePopupURL(popupURL string) (json.RawMessage, error) {
	u, err := url.Parse(popupURL)
	if err != nil {
		return nil, err
	}
	decoded, err := base64.RawURLEncoding.DecodeString(u.Query().Get("message"))
	if err != nil {
		return nil, fmt.Errorf("decoding popup message: %w", err)
	}
	return decoded, nil
}
