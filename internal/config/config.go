// Package config loads and validates the process-wide, immutable settings
// the proxy is constructed from (spec.md §3 AppState, §6 Configuration,
// SPEC_FULL.md §4.J).
package config

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"
)

// State is the process-wide AppState: constructed once in main, shared by
// pointer, never mutated afterward.
type State struct {
	BindAddr              string
	BackendHost           string
	BackendScheme         string
	MorphDomainSuffix     string
	WorkspaceDomainSuffix string
	Version               string
	GitCommit             string

	TSNetHostname    string
	TSNetAuthKey     string
	TSNetLoginServer string
	TSNetStateDir    string

	Upstream *http.Client
}

// Load parses flags (with CMUXPROXY_* environment fallback) into a State,
// mirroring the teacher's env-overridable config pattern but flag-based
// since this process keeps no on-disk config file.
func Load(args []string, version, gitCommit string) (*State, error) {
	fs := flag.NewFlagSet("cmuxproxy", flag.ContinueOnError)

	bindAddr := fs.String("bind-addr", envOr("BIND_ADDR", "0.0.0.0:8080"), "address to listen on")
	backendHost := fs.String("backend-host", envOr("BACKEND_HOST", ""), "default host for BackendPort targets")
	backendScheme := fs.String("backend-scheme", envOr("BACKEND_SCHEME", "http"), "default scheme for BackendPort targets (http|https)")
	morphSuffix := fs.String("morph-domain-suffix", envOr("MORPH_DOMAIN_SUFFIX", ""), "if set, Port/Cmux routes resolve to an absolute host over this suffix")
	workspaceSuffix := fs.String("workspace-domain-suffix", envOr("WORKSPACE_DOMAIN_SUFFIX", ""), "if set, Workspace routes resolve to an absolute host over this suffix")
	tsnetHostname := fs.String("tsnet-hostname", envOr("TSNET_HOSTNAME", ""), "if set, listen over a tsnet tailnet node with this hostname")
	tsnetAuthKey := fs.String("tsnet-auth-key", envOr("TSNET_AUTH_KEY", ""), "tsnet auth key")
	tsnetLoginServer := fs.String("tsnet-login-server", envOr("TSNET_LOGIN_SERVER", ""), "tsnet control-plane URL")
	tsnetStateDir := fs.String("tsnet-state-dir", envOr("TSNET_STATE_DIR", ""), "tsnet state directory")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	st := &State{
		BindAddr:              *bindAddr,
		BackendHost:           *backendHost,
		BackendScheme:         *backendScheme,
		MorphDomainSuffix:     normalizeSuffix(*morphSuffix),
		WorkspaceDomainSuffix: normalizeSuffix(*workspaceSuffix),
		Version:               version,
		GitCommit:             gitCommit,
		TSNetHostname:         *tsnetHostname,
		TSNetAuthKey:          *tsnetAuthKey,
		TSNetLoginServer:      *tsnetLoginServer,
		TSNetStateDir:         *tsnetStateDir,
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}
	st.Upstream = NewUpstreamClient(nil)
	return st, nil
}

func envOr(suffix, def string) string {
	if v, ok := os.LookupEnv("CMUXPROXY_" + suffix); ok {
		return v
	}
	return def
}

func normalizeSuffix(s string) string {
	if s == "" {
		return ""
	}
	if !strings.HasPrefix(s, ".") {
		s = "." + s
	}
	return s
}

// Validate mirrors the teacher's Config.Validate: fail fast on a
// configuration that would make every request 502.
func (s *State) Validate() error {
	if s.BackendHost == "" {
		return fmt.Errorf("backend-host must not be empty")
	}
	if s.BackendScheme != "http" && s.BackendScheme != "https" {
		return fmt.Errorf("backend-scheme must be http or https, got %q", s.BackendScheme)
	}
	if s.MorphDomainSuffix != "" && strings.HasPrefix(strings.TrimPrefix(s.MorphDomainSuffix, "."), "-") {
		return fmt.Errorf("morph-domain-suffix must not start with '-'")
	}
	if s.WorkspaceDomainSuffix != "" && strings.HasPrefix(strings.TrimPrefix(s.WorkspaceDomainSuffix, "."), "-") {
		return fmt.Errorf("workspace-domain-suffix must not start with '-'")
	}
	return nil
}

// NewUpstreamClient builds the HTTP/1.1-only, WebPKI-rooted client
// spec.md §6 requires. dialContext, when non-nil, overrides the transport's
// dial function (used by main.go to route upstream traffic over a tsnet
// node when -tsnet-hostname is set).
func NewUpstreamClient(dialContext func(ctx context.Context, network, addr string) (net.Conn, error)) *http.Client {
	pool, _ := x509.SystemCertPool()
	transport := &http.Transport{
		ForceAttemptHTTP2: false,
		TLSClientConfig:   &tls.Config{RootCAs: pool},
		IdleConnTimeout:   90 * time.Second,
	}
	if dialContext != nil {
		transport.DialContext = dialContext
	}
	return &http.Client{Transport: transport}
}
