package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// ErrServerClosed is returned when operations are attempted on a closed server.
var ErrServerClosed = errors.New("rpc: server closed")

// maxRequestBytes bounds a single RPC request body. Documents travel inline
// as base64, so this has to be generous.
const maxRequestBytes = 256 << 20

// Server serves the JSON message protocol over HTTP.
type Server struct {
	registry *Registry
	logger   *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	closed     bool

	serveDone chan struct{}
}

// NewServer creates a server dispatching to the given registry.
func NewServer(registry *Registry, logger *slog.Logger) *Server {
	return &Server{
		registry:  registry,
		logger:    logger,
		serveDone: make(chan struct{}),
	}
}

// Start binds addr and serves in a goroutine. Port 0 picks an ephemeral
// port; Addr reports the bound address.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServerClosed
	}
	if s.httpServer != nil {
		return nil // Already started
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc listen %s: %w", addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("POST /rpc", s.handleRPC)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpServer = &http.Server{
		Handler:     mux,
		ReadTimeout: 10 * time.Minute, // large documents upload slowly
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		defer close(s.serveDone)
		s.logger.Info("rpc_server_listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("rpc_server_error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Shutdown drains in-flight requests and joins the serve goroutine.
// Safe to call more than once and before Start.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.closed = true
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	err := srv.Shutdown(ctx)

	select {
	case <-s.serveDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

// handleRPC decodes one request Message, dispatches it, and writes the
// response Message. Transport status is 200 even for method errors; the
// error travels in the message envelope.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	req, err := ParseMessage(body)
	if err != nil {
		s.writeMessage(w, NewErrorResponse("", CodeBadRequest, err.Error()))
		return
	}
	if req.Type != MessageTypeRequest {
		s.writeMessage(w, NewErrorResponse(req.CorrelationID, CodeBadRequest, "not a request message"))
		return
	}

	resp, err := s.registry.Handle(r.Context(), req)
	if err != nil {
		s.writeMessage(w, errorMessage(req, err))
		return
	}
	s.writeMessage(w, resp)
}

// errorMessage maps a handler error to an error response. Handlers that
// need a specific code return a *Error; everything else is internal.
func errorMessage(req *Message, err error) *Message {
	var coded *Error
	switch {
	case errors.As(err, &coded):
		return NewErrorResponse(req.CorrelationID, coded.Code, coded.Message)
	case errors.Is(err, ErrMethodNotFound):
		return NewErrorResponse(req.CorrelationID, CodeMethodNotFound, err.Error())
	default:
		return NewErrorResponse(req.CorrelationID, CodeInternal, err.Error())
	}
}

func (s *Server) writeMessage(w http.ResponseWriter, msg *Message) {
	w.Header().Set("Content-Type", "application/json")
	data, err := msg.Marshal()
	if err != nil {
		http.Error(w, "encode response", http.StatusInternalServerError)
		return
	}
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("rpc_response_write_failed", "error", err)
	}
}
