package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/openweather-bridge/internal/domain"
	"github.com/couchcryptid/openweather-bridge/internal/plugin"
)

const (
	maxBodyBytes      = 1 << 20
	heartbeatInterval = 15 * time.Second
)

// Server exposes health, readiness, and metrics endpoints, and hosts plugin
// channels registered through SetChannels.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger

	// done is closed by Shutdown to end open event streams, which
	// http.Server.Shutdown would otherwise wait on until its deadline.
	done      chan struct{}
	closeDone sync.Once
}

// NewServer creates an HTTP server with /healthz, /readyz, and /metrics routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		mux:    mux,
		logger: logger,
		done:   make(chan struct{}),
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// SetChannels implements plugin.Registrar. The method channel is served at
// POST /channels/<methodChannel> and the event channel as a Server-Sent
// Events stream at GET /channels/<eventChannel>?event=<name>.
func (s *Server) SetChannels(methodChannel, eventChannel string, h plugin.ChannelHandler) {
	s.mux.HandleFunc("POST /channels/"+methodChannel, s.handleMethod(h))
	s.mux.HandleFunc("GET /channels/"+eventChannel, s.handleEvents(h))
	s.logger.Info("channels registered", "method_channel", methodChannel, "event_channel", eventChannel)
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("http server starting", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown ends open event streams, then gracefully drains connections
// within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeDone.Do(func() { close(s.done) })
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type methodResponse struct {
	Result any `json:"result"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleMethod(h plugin.ChannelHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var call plugin.MethodCall
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&call); err != nil {
			sharedobs.WriteJSON(w, http.StatusBadRequest, errorResponse{Code: "bad_request", Message: err.Error()})
			return
		}
		if call.Method == "" {
			sharedobs.WriteJSON(w, http.StatusBadRequest, errorResponse{Code: "bad_request", Message: "method is required"})
			return
		}

		result, err := h.HandleMethodCall(r.Context(), call)
		if err != nil {
			status, code := classifyError(err)
			sharedobs.WriteJSON(w, status, errorResponse{Code: code, Message: err.Error()})
			return
		}
		sharedobs.WriteJSON(w, http.StatusOK, methodResponse{Result: result})
	}
}

func classifyError(err error) (int, string) {
	var cfgErr *domain.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest, "invalid_config"
	case errors.Is(err, plugin.ErrMethodNotImplemented):
		return http.StatusNotFound, "not_implemented"
	case errors.Is(err, plugin.ErrNotInitialized):
		return http.StatusConflict, "not_initialized"
	default:
		return http.StatusInternalServerError, "error"
	}
}

// handleEvents streams one event name to the client. The listener lives
// exactly as long as the request.
func (s *Server) handleEvents(h plugin.ChannelHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		event := r.URL.Query().Get("event")
		if event == "" {
			event = plugin.EventDataChanged
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			sharedobs.WriteJSON(w, http.StatusInternalServerError, errorResponse{Code: "error", Message: "streaming unsupported"})
			return
		}
		// Streams outlive the server's WriteTimeout.
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		ctx := r.Context()
		frames := make(chan []byte)
		l := h.Listen(event, func(sinkCtx context.Context, payload map[string]any) error {
			data, err := json.Marshal(payload)
			if err != nil {
				return fmt.Errorf("encode %s payload: %w", event, err)
			}
			select {
			case frames <- data:
				return nil
			case <-ctx.Done():
				return plugin.ErrListenerClosed
			case <-s.done:
				return plugin.ErrListenerClosed
			case <-sinkCtx.Done():
				return sinkCtx.Err()
			}
		})
		defer l.Cancel()
		s.logger.Debug("event listener attached", "event", event, "listener_id", l.ID)

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("event listener detached", "event", event, "listener_id", l.ID)
				return
			case <-s.done:
				s.logger.Debug("event listener detached", "event", event, "listener_id", l.ID, "reason", "shutdown")
				return
			case data := <-frames:
				if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
					return
				}
				flusher.Flush()
			case <-heartbeat.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}
