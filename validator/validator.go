// Package validator decides whether an inbound message comes from a
// sender the dispatcher may trust.
package validator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmcleod/keriauth/host"
	"github.com/jmcleod/keriauth/message"
)

var (
	ErrForeignExtension = errors.New("sender is not this extension")
	ErrNoURL            = errors.New("sender has no url")
	ErrOriginNotGranted = errors.New("origin has no host permission")
	ErrInvalidPayload   = errors.New("invalid message payload")
)

// Validator authenticates message senders.
type Validator struct {
	extensionID     string
	extensionOrigin string
	permissions     host.Permissions
	logger          *slog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the logger for rejections.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) { v.logger = logger }
}

// New returns a Validator for the extension identified by extensionID and
// served from extensionOrigin (e.g. "chrome-extension://<id>").
func New(extensionID, extensionOrigin string, permissions host.Permissions, opts ...Option) *Validator {
	v := &Validator{
		extensionID:     extensionID,
		extensionOrigin: strings.TrimSuffix(strings.ToLower(extensionOrigin), "/"),
		permissions:     permissions,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate reports whether raw, sent by sender, may be processed. Every
// rejection is logged; the caller must drop the message without replying.
func (v *Validator) Validate(ctx context.Context, sender message.Sender, raw []byte) bool {
	if err := v.Check(ctx, sender, raw); err != nil {
		v.logger.Warn("rejected message from untrusted sender",
			"sender_id", sender.ID, "sender_url", sender.URL, "error", err)
		return false
	}
	return true
}

// Check is Validate with the reason for rejection.
func (v *Validator) Check(ctx context.Context, sender message.Sender, raw []byte) error {
	if sender.ID != v.extensionID {
		return ErrForeignExtension
	}
	if sender.URL == "" {
		return ErrNoURL
	}
	origin, err := message.Origin(sender.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoURL, err)
	}
	if origin != v.extensionOrigin {
		granted, err := v.originGranted(ctx, origin)
		if err != nil {
			return fmt.Errorf("querying permissions: %w", err)
		}
		if !granted {
			return fmt.Errorf("%w: %s", ErrOriginNotGranted, origin)
		}
	}
	if _, err := message.PeekType(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// IsFromApp reports whether sender is one of the extension's own pages.
// It does not authenticate; call Validate first.
func (v *Validator) IsFromApp(sender message.Sender) bool {
	origin, err := message.Origin(sender.URL)
	return err == nil && origin == v.extensionOrigin
}

// originGranted requires a grant for exactly origin. Wildcard patterns
// never match, so a grant for https://example.com/* does not admit
// https://evil.example.com.
func (v *Validator) originGranted(ctx context.Context, origin string) (bool, error) {
	patterns, err := v.permissions.GrantedOrigins(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range patterns {
		if grantedOrigin(p) == origin {
			return true, nil
		}
	}
	return false, nil
}

// grantedOrigin returns the exact origin a pattern grants, or "" when the
// pattern is a wildcard or unparsable.
func grantedOrigin(pattern string) string {
	base, ok := strings.CutSuffix(pattern, "/*")
	if !ok || strings.Contains(base, "*") {
		return ""
	}
	origin, err := message.Origin(base)
	if err != nil {
		return ""
	}
	return origin
}
