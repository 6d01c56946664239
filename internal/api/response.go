package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"clearr.app/backend/internal/core"
)

// envelope is the body of every response.
type envelope struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Data       any    `json:"data,omitempty"`
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error,omitempty"`
	Stack      string `json:"stack,omitempty"`
}

// writeJSON marshals before writing the header so a payload that cannot be
// encoded still gets a well-formed 500 envelope.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("encode response",
			zap.String("request_id", requestID(r)),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
		status = http.StatusInternalServerError
		body, _ = json.Marshal(envelope{Success: false, Message: "Internal server error", StatusCode: status})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		h.logger.Warn("write response",
			zap.String("request_id", requestID(r)),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
}

func (h *Handler) writeSuccess(w http.ResponseWriter, r *http.Request, status int, message string, data any) {
	h.writeJSON(w, r, status, envelope{Success: true, Message: message, Data: data, StatusCode: status})
}

func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.writeJSON(w, r, status, envelope{Success: false, Message: message, StatusCode: status})
}

// writeError maps a service error to its status and public message.
// Server-side failures are logged; the raw error is only exposed in
// development.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := core.StatusCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", requestID(r)),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	body := envelope{Success: false, Message: core.PublicMessage(err, fallback), StatusCode: status}
	if h.dev {
		body.Error = err.Error()
	}
	h.writeJSON(w, r, status, body)
}

var errEmptyBody = errors.New("request body is empty")

// decodeJSON reads a JSON body of at most 1 MiB into dst.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}
