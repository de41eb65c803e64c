package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/keriauth/message"
	"github.com/jmcleod/keriauth/session"
)

func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (a *API) GetSession(w http.ResponseWriter, r *http.Request) {
	state, expiresAt, unlocked, err := a.dispatcher.SessionStatus(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	resp := SessionResponse{State: state.String(), Unlocked: unlocked}
	if state == session.Unlocked {
		resp.ExpiresAt = &expiresAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) LockSession(w http.ResponseWriter, r *http.Request) {
	if err := a.dispatcher.Lock(r.Context()); err != nil {
		mapError(w, err)
		return
	}
	a.logger.Info("session locked via api")
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) UnlockSession(w http.ResponseWriter, r *http.Request) {
	key := clientKey(r)
	if blocked, retryAfter := a.limiter.check(key); blocked {
		writeRateLimited(w, retryAfter)
		return
	}

	var req UnlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Passcode == "" {
		writeError(w, http.StatusBadRequest, session.ErrEmptyPasscode.Error())
		return
	}

	err := a.dispatcher.Unlock(r.Context(), req.Passcode)
	if errors.Is(err, session.ErrInvalidPasscode) {
		a.limiter.recordFailure(key)
		a.logger.Warn("unlock failed", "client", key)
	}
	if err != nil {
		mapError(w, err)
		return
	}
	a.limiter.recordSuccess(key)
	a.GetSession(w, r)
}

func (a *API) ListPending(w http.ResponseWriter, r *http.Request) {
	reqs, err := a.dispatcher.PendingRequests(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	resp := ListPendingResponse{Requests: make([]PendingRequest, 0, len(reqs))}
	for _, p := range reqs {
		resp.Requests = append(resp.Requests, PendingRequest{
			RequestID: p.RequestID,
			Type:      p.Type,
			CreatedAt: p.CreatedAtUtc,
			TabID:     p.TabID,
			TabURL:    p.TabURL,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreatePending sends a request to the App and waits for its response.
// The request is listed under GET /pending while it waits.
func (a *API) CreatePending(w http.ResponseWriter, r *http.Request) {
	var req AppRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var timeout time.Duration
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "timeout must be a positive duration")
			return
		}
		timeout = d
	}
	resp, err := a.dispatcher.RequestFromApp(r.Context(), message.ToApp{
		Payload: req.Payload,
		TabID:   req.TabID,
		TabURL:  req.TabURL,
	}, timeout)
	if err != nil {
		a.logger.Warn("app request failed", "error", err)
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AppResponse{RequestID: resp.RequestID, Payload: resp.Payload})
}

func (a *API) DeletePending(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "requestID")
	if err := a.dispatcher.RemovePending(r.Context(), id); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) SweepPending(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	maxAge, err := time.ParseDuration(req.MaxAge)
	if err != nil || maxAge <= 0 {
		writeError(w, http.StatusBadRequest, "max_age must be a positive duration")
		return
	}
	n, err := a.dispatcher.SweepPending(r.Context(), maxAge)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResponse{Removed: n})
}
