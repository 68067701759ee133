// Package wsbridge completes a client WebSocket upgrade, dials the
// resolved upstream over WebSocket, and pumps frames bidirectionally until
// either side closes (spec.md §4.H).
package wsbridge

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"

	"github.com/manaflow-ai/cmux-proxy/internal/behavior"
	"github.com/manaflow-ai/cmux-proxy/internal/cmuxhost"
	"github.com/manaflow-ai/cmux-proxy/internal/httpx"
	"github.com/manaflow-ai/cmux-proxy/internal/route"
)

// IsUpgradeRequest reports whether req is a WebSocket handshake: a
// "Connection" header containing the "upgrade" token plus an "Upgrade:
// websocket" header.
func IsUpgradeRequest(r *http.Request) bool {
	return headerContainsToken(r.Header, "Connection", "upgrade") &&
		strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func headerContainsToken(h http.Header, name, token string) bool {
	for _, v := range h.Values(name) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}

// Bridge implements spec.md §4.H. normalizedHost is the already-normalized
// request host (internal/cmuxhost.Extract output), used to derive the
// workspace scope header when behavior didn't already set one.
func Bridge(w http.ResponseWriter, r *http.Request, target route.Target, backendHost, backendScheme string, b behavior.ProxyBehavior, normalizedHost string) {
	wsScheme := "ws"
	switch route.Scheme(target, backendScheme) {
	case "https", "wss":
		wsScheme = "wss"
	}
	authority := route.Authority(target, backendHost)
	upstreamURL := fmt.Sprintf("%s://%s%s", wsScheme, authority, r.URL.RequestURI())

	headers := forwardHeaders(r, b, normalizedHost)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	upstreamConn, _, err := websocket.Dial(ctx, upstreamURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		httpx.PlainError(w, http.StatusInternalServerError, "Failed to upgrade WebSocket connection")
		return
	}
	defer upstreamConn.CloseNow()

	clientConn, err := websocket.Accept(w, r, nil)
	if err != nil {
		upstreamConn.Close(websocket.StatusInternalError, "client upgrade failed")
		return
	}
	defer clientConn.CloseNow()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pump(gctx, clientConn, upstreamConn) })
	g.Go(func() error { return pump(gctx, upstreamConn, clientConn) })
	_ = g.Wait()
}

// forwardHeaders builds the header set dialed out to the upstream
// WebSocket, per spec.md §4.H step 2.
func forwardHeaders(r *http.Request, b behavior.ProxyBehavior, normalizedHost string) http.Header {
	h := http.Header{}
	if ua := r.Header.Get("User-Agent"); ua != "" {
		h.Set("User-Agent", ua)
	}
	h.Set("X-Cmux-Proxied", "true")
	if b.HasPortHeader {
		h.Set("X-Cmux-Port-Internal", b.PortHeader)
	}
	if b.HasWorkspace {
		h.Set("X-Cmux-Workspace-Internal", b.WorkspaceHeader)
	} else if scope, ok := deriveWorkspaceScope(normalizedHost); ok {
		h.Set("X-Cmux-Workspace-Internal", scope)
	}
	return h
}

// deriveWorkspaceScope mirrors spec.md §9 "WS scope derivation": re-parse
// the normalized host and apply the cmux-route scope rule.
func deriveWorkspaceScope(normalizedHost string) (string, bool) {
	subdomain, hasSubdomain, _, ok := cmuxhost.Parse(normalizedHost)
	if !ok || !hasSubdomain {
		return "", false
	}
	return route.ScopeFromCmuxSubdomain(subdomain)
}

// pump copies messages from src to dst until src errors or closes. On a
// clean close it forwards the close frame to dst; on any other read error
// it closes dst's send side and returns.
func pump(ctx context.Context, src, dst *websocket.Conn) error {
	for {
		typ, data, err := src.Read(ctx)
		if err != nil {
			code := websocket.CloseStatus(err)
			if code != -1 {
				_ = dst.Close(code, "")
			} else {
				_ = dst.Close(websocket.StatusNormalClosure, "")
			}
			return err
		}
		if err := dst.Write(ctx, typ, data); err != nil {
			return err
		}
	}
}
