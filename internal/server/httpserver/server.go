package httpserver

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/yndnr/tokenkeeper/internal/infra/tlsroots"
	"github.com/yndnr/tokenkeeper/internal/telemetry/logger"
)

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	logger     logger.Logger
	done       chan struct{}

	// certs is set by StartTLS.
	certs *tlsroots.Watcher
}

// New creates a new HTTP server.
func New(addr string, handler http.Handler, log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.Component(log, "http"),
	}
}

// Start binds the address and serves in a goroutine. Bind errors are
// returned here rather than lost in the goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.serve(ln, false)
	return nil
}

// StartTLS is Start over HTTPS. The key pair is watched and reloaded
// when either file changes.
func (s *Server) StartTLS(certFile, keyFile string) error {
	certs, err := tlsroots.NewWatcher(certFile, keyFile, tlsroots.WithLogger(s.logger))
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		_ = certs.Stop()
		return err
	}
	s.certs = certs
	s.serve(tls.NewListener(ln, certs.ServerConfig()), true)
	return nil
}

func (s *Server) serve(ln net.Listener, secure bool) {
	s.listener = ln
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.logger.Info("http listener started", "addr", ln.Addr().String(), "tls", secure)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.done == nil {
		return nil
	}
	err := s.httpServer.Shutdown(ctx)
	<-s.done
	if s.certs != nil {
		err = errors.Join(err, s.certs.Stop())
	}
	return err
}
