// Package handler exposes the chat pipeline over HTTP: POST /chat streams
// completion fragments, GET /health reports liveness.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"ask-vadym/internal/domain"
	"ask-vadym/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	maxBodyBytes      = 64 * 1024
)

// ChatStreamer is the pipeline surface the handler depends on.
type ChatStreamer interface {
	Chat(ctx context.Context, in usecase.ChatInput) (domain.CompletionStream, error)
}

type chatRequest struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

type Handler struct {
	svc ChatStreamer
	log *slog.Logger
}

func NewHandler(svc ChatStreamer, log *slog.Logger) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("handler: chat service must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}, nil
}

// Router assembles the HTTP surface: real-IP resolution (rate limiting keys
// on it), request logging, panic recovery, CORS, and the two endpoints.
func (h *Handler) Router(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(h.logRequests)
	r.Use(h.recoverPanics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))
	r.Get("/health", h.Health)
	r.Post("/chat", h.Chat)
	return r
}

// Health reports liveness. Independent of rate-limit and upstream state.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Chat runs the request pipeline and copies the completion stream to the
// response as it arrives.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(correlationHeader, correlationID(r))

	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:  "Validation error",
			Detail: "request body must be valid JSON",
		})
		return
	}

	stream, err := h.svc.Chat(r.Context(), usecase.ChatInput{
		Message:  req.Message,
		ClientID: clientIdentity(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer func() { _ = stream.Close() }()

	h.copyStream(w, stream)
}

// copyStream forwards fragments to the client in arrival order, flushing
// after each write so the caller renders incrementally. The status line is
// held back until the first fragment arrives: a stream that fails before
// producing anything still gets a JSON 500 body, while a failure after bytes
// have flowed can only signal via an abrupt close.
func (h *Handler) copyStream(w http.ResponseWriter, stream domain.CompletionStream) {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")

	flusher, _ := w.(http.Flusher)
	started := false
	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			if !started {
				h.log.Error("completion stream failed before first fragment", "err", err)
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
				return
			}
			h.log.Warn("completion stream aborted mid-flight", "err", err)
			return
		}

		if !started {
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := io.WriteString(w, fragment); err != nil {
			h.log.Debug("client disconnected mid-stream", "err", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// writeError maps pipeline failures onto the external error contract. The
// mapping is total: anything without a dedicated row collapses into an
// opaque 500 so internals never leak.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		h.log.Error("unhandled error", "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
		return
	}

	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Validation error", Detail: ucErr.Reason})
	case usecase.ErrorMessageTooLong:
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "Validation error", Detail: ucErr.Reason})
	case usecase.ErrorRateLimited:
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "Rate limit exceeded"})
	default:
		h.log.Error("chat pipeline failed", "code", string(ucErr.Code), "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
	}
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

func (h *Handler) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.log.Error("panic while handling request", "path", r.URL.Path, "panic", rec)
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// clientIdentity keys rate limiting by the request's network origin. RealIP
// middleware has already folded proxy headers into RemoteAddr.
func clientIdentity(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func correlationID(r *http.Request) string {
	if id := r.Header.Get(correlationHeader); id != "" {
		return id
	}
	return uuid.NewString()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
