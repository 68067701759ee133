// Package tsnet adapts a tailscale.com/tsnet node into a listener factory
// (a func(ctx) (net.Listener, error) returned by Factory), so the front door
// can optionally bind on a tailnet address instead of a plain TCP socket.
package tsnet

import (
	"context"
	"fmt"
	"net"

	"tailscale.com/tsnet"
)

// Options configures the tailnet node backing the listener.
type Options struct {
	StateDir   string
	Hostname   string
	LoginURL   string
	AuthKey    string
	ListenAddr string // e.g. ":8080"
}

// New constructs the underlying tsnet.Server without starting it.
func New(opts Options) *tsnet.Server {
	return &tsnet.Server{
		Dir:        opts.StateDir,
		Hostname:   opts.Hostname,
		AuthKey:    opts.AuthKey,
		ControlURL: opts.LoginURL,
	}
}

// Factory starts a tsnet node and returns a net.Listener bound to it. The
// caller is responsible for closing the *tsnet.Server itself on shutdown.
func Factory(s *tsnet.Server, listenAddr string) func(ctx context.Context) (net.Listener, error) {
	return func(ctx context.Context) (net.Listener, error) {
		if err := s.Start(); err != nil {
			return nil, fmt.Errorf("tsnet start: %w", err)
		}
		ln, err := s.Listen("tcp", listenAddr)
		if err != nil {
			return nil, fmt.Errorf("tsnet listen: %w", err)
		}
		return ln, nil
	}
}

// DialContext dials out through the tailnet node's netstack. Used as the
// upstream client's DialContext when the proxy is configured to reach
// upstreams over the tailnet rather than plain TCP.
func DialContext(s *tsnet.Server) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return s.Dial(ctx, network, addr)
	}
}
