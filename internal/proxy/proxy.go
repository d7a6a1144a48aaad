// Package proxy runs the loopback reverse proxy the wrapped client talks to.
// Outbound traffic goes through the supplied RoundTripper, which is where
// usage observation happens.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"
)

// Server forwards every request it receives to a single upstream origin.
type Server struct {
	upstream *url.URL
	proxy    *httputil.ReverseProxy
	logger   *slog.Logger

	mu     sync.Mutex
	server *http.Server
}

// New returns a proxy to upstream. A nil rt uses http.DefaultTransport.
func New(upstream *url.URL, rt http.RoundTripper, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if rt == nil {
		rt = http.DefaultTransport
	}

	s := &Server{upstream: upstream, logger: logger}
	s.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.Out.Host = upstream.Host
		},
		Transport: rt,
		// Streamed responses must reach the client as they arrive.
		FlushInterval: -1,
		ErrorHandler:  s.handleError,
	}
	return s
}

// Handler returns the proxy handler.
func (s *Server) Handler() http.Handler {
	return s.proxy
}

// Start listens on addr (use "127.0.0.1:0" for an ephemeral port) and
// returns the base URL clients should use.
func (s *Server) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("proxy listen: %w", err)
	}

	server := &http.Server{
		Handler:           s.proxy,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("proxy server stopped", "error", err)
		}
	}()

	s.logger.Debug("proxy listening", "addr", ln.Addr().String(), "upstream", s.upstream.String())
	return "http://" + ln.Addr().String(), nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()
	if server == nil {
		return nil
	}

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("proxy shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		// Client went away; nothing to report.
		return
	}
	s.logger.Warn("upstream request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	w.WriteHeader(http.StatusBadGateway)
}
