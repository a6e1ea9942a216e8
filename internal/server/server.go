package server

import (
	"context"
	"net"
	"net/http"
	"time"
)

// Server represents the admin HTTP server
type Server struct {
	srv *http.Server
}

// New creates a new server instance
func New(handler http.Handler, port string) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         ":" + port,
			Handler:      handler,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Start listens on the configured port and serves in a goroutine. Listen
// errors are returned directly; a serve failure after that is sent on the
// returned channel, which is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return nil, err
	}

	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()
	return errc, nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
