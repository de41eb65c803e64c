// Package signify is the boundary to the KERI agent client. Signing
// itself happens in the agent; the dispatcher only asks for it.
package signify

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmcleod/keriauth/models"
	"github.com/jmcleod/keriauth/store"
)

var (
	// ErrNotConnected is returned when no agent connection exists for the
	// current session.
	ErrNotConnected = errors.New("not connected to a keri agent")
	// ErrNoPrefix is returned when a request names no signing identifier.
	ErrNoPrefix = errors.New("no identifier prefix to sign with")
)

// SignHeadersRequest asks the agent to sign an outgoing HTTP request on
// behalf of the identifier Prefix.
type SignHeadersRequest struct {
	Prefix  string            `json:"prefix"`
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Client signs on behalf of an identifier held by the agent.
type Client interface {
	// SignHeaders returns the headers to add to the request, typically
	// Signature and Signature-Input.
	SignHeaders(ctx context.Context, req SignHeadersRequest) (map[string]string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req SignHeadersRequest) (map[string]string, error)

func (f ClientFunc) SignHeaders(ctx context.Context, req SignHeadersRequest) (map[string]string, error) {
	return f(ctx, req)
}

// Disconnected is a Client with no agent behind it.
type Disconnected struct{}

func (Disconnected) SignHeaders(context.Context, SignHeadersRequest) (map[string]string, error) {
	return nil, ErrNotConnected
}

// RequireConnection wraps next so that it is only reached while the
// session holds a ConnectionInfo record.
func RequireConnection(s *store.Service, next Client) Client {
	return ClientFunc(func(ctx context.Context, req SignHeadersRequest) (map[string]string, error) {
		if req.Prefix == "" {
			return nil, ErrNoPrefix
		}
		info, ok, err := store.Get(ctx, s, models.ConnectionInfoKind)
		if err != nil {
			return nil, fmt.Errorf("reading connection info: %w", err)
		}
		if !ok || info.AgentPrefix == "" {
			return nil, ErrNotConnected
		}
		return next.SignHeaders(ctx, req)
	})
}
