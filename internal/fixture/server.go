package fixture

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultAddress is where the standalone fixture server listens.
	DefaultAddress = "127.0.0.1:8089"

	readHeaderTimeout = 5 * time.Second
	baseURLFormat     = "http://%s"

	logEventListening = "fixture_listening"
	logEventServe     = "fixture_serve_failed"
	logFieldAddress   = "address"
)

// Server is a running fixture HTTP server.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	logger     *zap.Logger
	serveDone  chan error
}

// Start listens on the address and serves the replica pages in the background.
// An address with port 0 picks a free port; URL reports the bound address.
func Start(address string, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if address == "" {
		address = DefaultAddress
	}

	listener, listenErr := net.Listen("tcp", address)
	if listenErr != nil {
		return nil, fmt.Errorf("fixture: listen %s: %w", address, listenErr)
	}

	server := &Server{
		httpServer: &http.Server{
			Handler:           NewRouter(logger),
			ReadHeaderTimeout: readHeaderTimeout,
		},
		listener:  listener,
		logger:    logger,
		serveDone: make(chan error, 1),
	}

	logger.Info(logEventListening, zap.String(logFieldAddress, listener.Addr().String()))
	go func() {
		serveErr := server.httpServer.Serve(listener)
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}
		if serveErr != nil {
			logger.Error(logEventServe, zap.Error(serveErr))
		}
		server.serveDone <- serveErr
	}()

	return server, nil
}

// URL is the base URL of the running server.
func (server *Server) URL() string {
	return fmt.Sprintf(baseURLFormat, server.listener.Addr().String())
}

// Done delivers the serve loop's terminal error once it stops.
func (server *Server) Done() <-chan error {
	return server.serveDone
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (server *Server) Shutdown(ctx context.Context) error {
	return server.httpServer.Shutdown(ctx)
}
