package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bryan-buckman/mindful/internal/auth"
	"github.com/bryan-buckman/mindful/internal/chat"
	"github.com/bryan-buckman/mindful/internal/database"
	"github.com/bryan-buckman/mindful/internal/feed"
	"github.com/bryan-buckman/mindful/internal/mood"
	"github.com/bryan-buckman/mindful/internal/realtime"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Error codes returned in the "code" field of error bodies.
const (
	codeValidation         = "VALIDATION_ERROR"
	codeUnauthorized       = "UNAUTHORIZED"
	codeStorageUnavailable = "STORAGE_UNAVAILABLE"
	codeModelUnavailable   = "MODEL_UNAVAILABLE"
	codeChannelDegraded    = "CHANNEL_DEGRADED"
	codeChatUnavailable    = "CHAT_UNAVAILABLE"
	codeNotFound           = "NOT_FOUND"
	codeInternal           = "INTERNAL_ERROR"
)

const maxJSONBody = 1 << 20

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func badRequest(field, reason string) error {
	return &feed.ValidationError{Field: field, Reason: reason}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code and JSON error body. Server-side
// failures are logged; their details are not sent to the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *feed.ValidationError
	status, body := http.StatusInternalServerError, errorBody{Error: "internal error", Code: codeInternal}
	switch {
	case errors.As(err, &ve):
		status, body = http.StatusBadRequest, errorBody{Error: ve.Error(), Code: codeValidation}
	case errors.Is(err, chat.ErrEmptyMessage):
		status, body = http.StatusBadRequest, errorBody{Error: err.Error(), Code: codeValidation}
	case errors.Is(err, auth.ErrUnauthorized):
		status, body = http.StatusUnauthorized, errorBody{Error: "unauthorized", Code: codeUnauthorized}
	case errors.Is(err, database.ErrStorageUnavailable):
		body = errorBody{Error: "storage unavailable", Code: codeStorageUnavailable}
	case errors.Is(err, mood.ErrModelUnavailable):
		status, body = http.StatusServiceUnavailable, errorBody{Error: "expression model unavailable", Code: codeModelUnavailable}
	case errors.Is(err, realtime.ErrChannelDegraded):
		status, body = http.StatusServiceUnavailable, errorBody{Error: "realtime channel unavailable", Code: codeChannelDegraded}
	case errors.Is(err, chat.ErrNotConfigured):
		status, body = http.StatusServiceUnavailable, errorBody{Error: "chat assistant not configured", Code: codeChatUnavailable}
	}

	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Int("status", status),
			zap.Error(err))
	}
	writeJSON(w, status, body)
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		return badRequest("body", fmt.Sprintf("invalid JSON: %v", err))
	}
	return nil
}

// requestLogger writes one zap line per request.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("remote", r.RemoteAddr))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
