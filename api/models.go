package api

import (
	"encoding/json"
	"time"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

// SessionResponse describes the session. ExpiresAt is omitted while
// locked.
type SessionResponse struct {
	State     string     `json:"state"`
	Unlocked  bool       `json:"unlocked"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type UnlockRequest struct {
	Passcode string `json:"passcode"`
}

type PendingRequest struct {
	RequestID string    `json:"request_id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	TabID     *int      `json:"tab_id,omitempty"`
	TabURL    string    `json:"tab_url,omitempty"`
}

type ListPendingResponse struct {
	Requests []PendingRequest `json:"requests"`
}

// AppRequest asks the App for a response through the durable request
// protocol. Timeout is a duration string; empty uses the dispatcher's
// default.
type AppRequest struct {
	Payload json.RawMessage `json:"payload,omitempty"`
	Timeout string          `json:"timeout,omitempty"`
	TabID   *int            `json:"tab_id,omitempty"`
	TabURL  string          `json:"tab_url,omitempty"`
}

type AppResponse struct {
	RequestID string          `json:"request_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type SweepRequest struct {
	MaxAge string `json:"max_age"`
}

type SweepResponse struct {
	Removed int `json:"removed"`
}
