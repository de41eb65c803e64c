package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/jmcleod/keriauth/message"
	"github.com/jmcleod/keriauth/models"
	"github.com/jmcleod/keriauth/signify"
	"github.com/jmcleod/keriauth/store"
)

// signHeadersApproval is the payload of an approved sign-headers reply.
// Prefix, when set, is remembered for the requesting origin.
type signHeadersApproval struct {
	Prefix  string            `json:"prefix,omitempty"`
	Method  string            `json:"method,omitempty"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

type signedHeaders struct {
	Headers map[string]string `json:"headers"`
}

func (r *Router) handleApprovedSignHeaders(ctx context.Context, msg message.FromApp) error {
	if msg.TabID == nil {
		r.logger.Warn("dropping sign-headers approval without tab", "request_id", msg.RequestID)
		return nil
	}
	var approval signHeadersApproval
	if err := json.Unmarshal(msg.Payload, &approval); err != nil {
		return fmt.Errorf("%w: sign-headers payload: %v", message.ErrMalformed, err)
	}
	if err := validateURL(approval.URL); err != nil {
		return err
	}
	// The prefix is remembered for the requesting page, which may differ
	// from the URL being signed.
	if msg.TabURL == "" {
		return ErrNoTabURL
	}
	origin, err := message.Origin(msg.TabURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	prefix, err := r.resolvePrefix(ctx, origin, approval.Prefix)
	if err != nil {
		return err
	}
	method := strings.ToUpper(approval.Method)
	if method == "" {
		method = "GET"
	}

	headers, err := r.signer.SignHeaders(ctx, signify.SignHeadersRequest{
		Prefix:  prefix,
		Method:  method,
		URL:     approval.URL,
		Headers: approval.Headers,
	})
	if err != nil {
		return fmt.Errorf("signing headers: %w", err)
	}
	payload, err := json.Marshal(signedHeaders{Headers: headers})
	if err != nil {
		return fmt.Errorf("encoding signed headers: %w", err)
	}
	err = r.transport.SendToTab(ctx, *msg.TabID, message.ToContentScript{
		Type:      message.BwCsReply,
		RequestID: msg.RequestID,
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("replying to tab %d: %w", *msg.TabID, err)
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q is not an absolute http(s) url", ErrInvalidURL, raw)
	}
	return nil
}

// resolvePrefix picks the identifier to sign with for origin: the one the
// user just approved, then the one remembered for the origin, then the
// globally selected one.
func (r *Router) resolvePrefix(ctx context.Context, origin, approved string) (string, error) {
	if approved != "" {
		if err := r.rememberPrefix(ctx, origin, approved); err != nil {
			return "", err
		}
		return approved, nil
	}
	wc, err := r.ensureWebsiteConfig(ctx, origin)
	if err != nil {
		return "", err
	}
	if wc.RememberedPrefix != "" {
		return wc.RememberedPrefix, nil
	}
	prefs, _, err := store.Get(ctx, r.store, models.PreferencesKind)
	if err != nil {
		return "", fmt.Errorf("reading preferences: %w", err)
	}
	if prefs.SelectedPrefix == "" {
		return "", signify.ErrNoPrefix
	}
	return prefs.SelectedPrefix, nil
}

// ensureWebsiteConfig returns the configuration for origin, creating it on
// first contact.
func (r *Router) ensureWebsiteConfig(ctx context.Context, origin string) (models.WebsiteConfig, error) {
	wc, ok, err := store.GetItem(ctx, r.store, models.WebsiteConfigKind, origin)
	if err != nil {
		return wc, fmt.Errorf("reading website config for %s: %w", origin, err)
	}
	if ok {
		return wc, nil
	}
	wc = models.WebsiteConfig{Origin: origin, CreatedAtUtc: r.clock.Now().UTC()}
	if err := store.SetItem(ctx, r.store, models.WebsiteConfigKind, origin, wc); err != nil {
		return wc, fmt.Errorf("creating website config for %s: %w", origin, err)
	}
	r.logger.Info("created website config", "origin", origin)
	return wc, nil
}

func (r *Router) rememberPrefix(ctx context.Context, origin, prefix string) error {
	wc, err := r.ensureWebsiteConfig(ctx, origin)
	if err != nil {
		return err
	}
	if wc.RememberedPrefix == prefix {
		return nil
	}
	wc.RememberedPrefix = prefix
	if err := store.SetItem(ctx, r.store, models.WebsiteConfigKind, origin, wc); err != nil {
		return fmt.Errorf("remembering prefix for %s: %w", origin, err)
	}
	return nil
}
