package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jmcleod/keriauth/appbridge"
	"github.com/jmcleod/keriauth/session"
	"github.com/jmcleod/keriauth/storage"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidPasscode):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, session.ErrNotConfigured):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrEmptyPasscode):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, appbridge.ErrDuplicateRequest):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, appbridge.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, appbridge.ErrAppClosed), errors.Is(err, appbridge.ErrAppError):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
