package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"profilebook/errors"
	"profilebook/protocol"
	"time"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError answers with the status and wire code of err. Unknown errors are
// logged and their text is not leaked.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := errors.HTTPStatus(err)
	reason := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("Request failed", "error", err)
		reason = "internal error"
	}
	writeJSON(w, status, protocol.ErrorPayload{Code: errors.Code(err), Reason: reason})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.ErrInvalidPayload
	}
	return nil
}

// parseSince reads the optional exclusive lower bound of a catch-up query.
func parseSince(r *http.Request) (*time.Time, error) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return nil, nil
	}
	since, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, errors.ErrInvalidPayload
	}
	return &since, nil
}
