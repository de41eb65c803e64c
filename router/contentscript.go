package router

import (
	"context"
	"fmt"

	"github.com/jmcleod/keriauth/message"
)

func (r *Router) dispatchContentScript(ctx context.Context, typ string, raw []byte, sender message.Sender) {
	logger := r.logger.With("type", typ, "sender_url", sender.URL)
	if !message.IsContentScriptType(typ) {
		logger.Info("dropping unknown content script message")
		return
	}
	if sender.TabID == nil {
		logger.Warn("dropping content script message without tab")
		return
	}
	tabID := *sender.TabID
	msg, err := message.Decode[message.FromContentScript](raw)
	if err != nil {
		logger.Warn("dropping malformed content script message", "error", err)
		return
	}
	if err := r.handleContentScript(ctx, msg, sender, tabID); err != nil {
		logger.Error("handling content script message", "tab_id", tabID, "request_id", msg.RequestID, "error", err)
		r.replyError(ctx, tabID, msg.RequestID, err)
	}
}

// handleContentScript never extends the session: a page must not be able
// to keep it alive.
func (r *Router) handleContentScript(ctx context.Context, msg message.FromContentScript, sender message.Sender, tabID int) error {
	if msg.Type == message.CsInit {
		err := r.transport.SendToTab(ctx, tabID, message.ToContentScript{
			Type:      message.BwCsReady,
			RequestID: msg.RequestID,
		})
		if err != nil {
			return fmt.Errorf("answering init: %w", err)
		}
		return nil
	}

	origin, err := message.Origin(sender.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req := popupRequest{
		Type:      msg.Type,
		RequestID: msg.RequestID,
		TabID:     message.IntPtr(tabID),
		TabURL:    sender.URL,
		Origin:    origin,
		Payload:   msg.Payload,
	}
	if msg.Type == message.CsSignRequest {
		wc, err := r.ensureWebsiteConfig(ctx, origin)
		if err != nil {
			return err
		}
		req.RememberedPrefix = wc.RememberedPrefix
	}
	return r.openPopup(ctx, req)
}
