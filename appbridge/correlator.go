// Package appbridge carries requests from the background dispatcher to
// the App and correlates the App's responses with the waiting callers.
package appbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmcleod/keriauth/host"
	"github.com/jmcleod/keriauth/internal/clock"
	"github.com/jmcleod/keriauth/message"
	"github.com/jmcleod/keriauth/models"
	"github.com/jmcleod/keriauth/store"
)

// DefaultTimeout applies when neither the caller nor WithDefaultTimeout
// sets one.
const DefaultTimeout = 60 * time.Second

var (
	ErrDuplicateRequest  = errors.New("request id already pending")
	ErrTimeout           = errors.New("timed out waiting for app response")
	ErrAppClosed         = errors.New("app closed before responding")
	ErrMalformedResponse = errors.New("malformed app response")
	ErrAppError          = errors.New("app returned an error")
)

type result struct {
	response message.FromApp
	err      error
}

// Correlator sends requests to the App and waits for the matching
// response. The waiter table is process memory: it is lost when the
// dispatcher is evicted, which is why every request is also persisted.
type Correlator struct {
	pending        *PendingStore
	transport      host.Transport
	clock          clock.Clock
	logger         *slog.Logger
	defaultTimeout time.Duration
	newID          func() string

	mu      sync.Mutex
	waiters map[string]chan result
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithClock sets the clock used for timeouts and timestamps.
func WithClock(clk clock.Clock) Option {
	return func(c *Correlator) { c.clock = clk }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Correlator) { c.logger = logger }
}

// WithDefaultTimeout sets the timeout used when a request passes zero.
// A non-positive d keeps DefaultTimeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Correlator) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

// NewCorrelator returns a Correlator persisting requests in s and
// notifying the App over transport.
func NewCorrelator(s *store.Service, transport host.Transport, opts ...Option) *Correlator {
	c := &Correlator{
		transport:      transport,
		clock:          clock.Real(),
		logger:         slog.Default(),
		defaultTimeout: DefaultTimeout,
		newID:          uuid.NewString,
		waiters:        make(map[string]chan result),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.pending = NewPendingStore(s, c.clock, c.logger)
	return c
}

// Pending returns the durable request store.
func (c *Correlator) Pending() *PendingStore { return c.pending }

// SendToApp delivers msg to the App without waiting for a reply. Failure
// is expected when no App surface is open and is only logged.
func (c *Correlator) SendToApp(ctx context.Context, msg message.ToApp) {
	if err := c.transport.SendToApp(ctx, msg); err != nil {
		c.logger.Debug("app not reachable", "type", msg.Type, "error", err)
	}
}

// SendRequestToApp persists msg as a pending request, notifies the App
// and waits up to timeout (zero: the default) for HandleResponseFromApp.
// On every return path the waiter and the durable record are removed.
func (c *Correlator) SendRequestToApp(ctx context.Context, msg message.ToApp, timeout time.Duration) (message.FromApp, error) {
	if msg.RequestID == "" {
		msg.RequestID = c.newID()
	}
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	logger := c.logger.With("request_id", msg.RequestID, "type", msg.Type)

	ch, err := c.register(msg.RequestID)
	if err != nil {
		return message.FromApp{}, err
	}
	defer c.release(ctx, msg.RequestID, ch)

	err = c.pending.Add(ctx, models.PendingBwAppRequest{
		RequestID:    msg.RequestID,
		Type:         msg.Type,
		Payload:      msg.Payload,
		CreatedAtUtc: c.clock.Now().UTC(),
		TabID:        msg.TabID,
		TabURL:       msg.TabURL,
	})
	if err != nil {
		return message.FromApp{}, err
	}

	// The App may not be open yet; it finds the request in storage when it is.
	c.SendToApp(ctx, msg)

	select {
	case r := <-ch:
		if r.err != nil {
			return message.FromApp{}, r.err
		}
		if r.response.Error != "" {
			return r.response, fmt.Errorf("%w: %s", ErrAppError, r.response.Error)
		}
		logger.Debug("app responded")
		return r.response, nil
	case <-c.clock.After(timeout):
		logger.Warn("app request timed out", "timeout", timeout)
		return message.FromApp{}, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	case <-ctx.Done():
		return message.FromApp{}, ctx.Err()
	}
}

// Request is SendRequestToApp with the response payload decoded into T.
func Request[T any](ctx context.Context, c *Correlator, msg message.ToApp, timeout time.Duration) (T, error) {
	var v T
	resp, err := c.SendRequestToApp(ctx, msg, timeout)
	if err != nil {
		return v, err
	}
	if len(resp.Payload) == 0 {
		return v, fmt.Errorf("%w: empty payload", ErrMalformedResponse)
	}
	if err := json.Unmarshal(resp.Payload, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return v, nil
}

// HandleResponseFromApp resolves the caller waiting on requestID. It
// reports false when nobody is waiting (timed out, or never issued here).
func (c *Correlator) HandleResponseFromApp(requestID string, resp message.FromApp) bool {
	c.mu.Lock()
	ch, ok := c.waiters[requestID]
	delete(c.waiters, requestID)
	c.mu.Unlock()
	if !ok {
		c.logger.Info("dropping response for unknown request", "request_id", requestID)
		return false
	}
	ch <- result{response: resp}
	return true
}

// HandleAppClosed fails every outstanding request with ErrAppClosed.
func (c *Correlator) HandleAppClosed() {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = make(map[string]chan result)
	c.mu.Unlock()
	for id, ch := range waiters {
		c.logger.Info("app closed with request outstanding", "request_id", id)
		ch <- result{err: ErrAppClosed}
	}
}

// Outstanding returns the number of callers waiting in this process.
func (c *Correlator) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// RecoverOrphans removes durable requests that no caller in this process
// is waiting for. Run on cold start, that is all of them: their callers
// were lost with the previous dispatcher.
func (c *Correlator) RecoverOrphans(ctx context.Context) (int, error) {
	n, err := c.pending.removeWhere(ctx, func(req models.PendingBwAppRequest) bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		_, waiting := c.waiters[req.RequestID]
		return !waiting
	})
	if n > 0 {
		c.logger.Info("removed orphaned app requests", "count", n)
	}
	return n, err
}

func (c *Correlator) register(id string) (chan result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.waiters[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateRequest, id)
	}
	// Buffered so a resolver never blocks on a caller that already left.
	ch := make(chan result, 1)
	c.waiters[id] = ch
	return ch, nil
}

// release drops the waiter ch registered for id and its durable record.
// A resolver may already have freed id and a new request may own it; that
// request's waiter and record are left alone.
func (c *Correlator) release(ctx context.Context, id string, ch chan result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.waiters[id]; ok {
		if cur != ch {
			return
		}
		delete(c.waiters, id)
	}
	if err := c.pending.Remove(context.WithoutCancel(ctx), id); err != nil {
		c.logger.Error("removing pending request", "request_id", id, "error", err)
	}
}
