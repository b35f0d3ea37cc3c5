// Package inbox exposes the unsolicited input channel over HTTP. A gateway
// that receives short messages posts each one here, either as a command to
// run through the agent or as an ordinary message to mirror to the relays.
package inbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jmcleod/remotehand/protocol"
)

// maxFormSize bounds a posted message.
const maxFormSize = 64 << 10

// Agent is the part of the agent the inbox drives.
type Agent interface {
	HandleUnsolicitedCommand(ctx context.Context, sender, text string) (*protocol.Response, error)
	ObserveUnsolicited(ctx context.Context, sender, text string) bool
}

// Inbox serves the unsolicited channel endpoints.
type Inbox struct {
	agent  Agent
	logger *slog.Logger
}

// Option configures an Inbox.
type Option func(*Inbox)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(in *Inbox) { in.logger = logger }
}

// New creates an Inbox in front of agent.
func New(agent Agent, opts ...Option) *Inbox {
	in := &Inbox{agent: agent}
	for _, opt := range opts {
		opt(in)
	}
	if in.logger == nil {
		in.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return in
}

// Router returns the HTTP routes:
//
//	GET  /health         liveness check
//	POST /sms/command    run a message as a command, reply by SMS
//	POST /sms/received   mirror an ordinary message when spying
func (in *Inbox) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(in.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(noStore)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Route("/sms", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/x-www-form-urlencoded", "multipart/form-data"))
		r.Post("/command", in.Command)
		r.Post("/received", in.Received)
	})
	return r
}

// Command runs the posted message through the session gate and dispatcher
// as sender. The response is sent back to sender by SMS and echoed in the
// HTTP body.
func (in *Inbox) Command(w http.ResponseWriter, r *http.Request) {
	sender, text, ok := readMessage(w, r)
	if !ok {
		return
	}
	resp, err := in.agent.HandleUnsolicitedCommand(r.Context(), sender, text)
	if err != nil {
		in.logger.Warn("unsolicited reply failed", "sender", sender, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	w.Write(resp.Bytes())
}

// Received mirrors an ordinary message to the relays when spying is on.
func (in *Inbox) Received(w http.ResponseWriter, r *http.Request) {
	sender, text, ok := readMessage(w, r)
	if !ok {
		return
	}
	mirrored := in.agent.ObserveUnsolicited(r.Context(), sender, text)
	writeJSON(w, http.StatusAccepted, ReceivedResponse{Mirrored: mirrored})
}

// ReceivedResponse reports whether a message was mirrored.
type ReceivedResponse struct {
	Mirrored bool `json:"mirrored"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func readMessage(w http.ResponseWriter, r *http.Request) (sender, text string, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return "", "", false
	}
	sender = r.PostForm.Get("sender")
	if sender == "" {
		writeError(w, http.StatusBadRequest, "sender is required")
		return "", "", false
	}
	return sender, r.PostForm.Get("message"), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// noStore keeps intermediaries from caching replies that may carry device
// state.
func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func (in *Inbox) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		in.logger.LogAttrs(r.Context(), slog.LevelDebug, "inbox request",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.String("remote_addr", r.RemoteAddr),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}
