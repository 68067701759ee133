// Package dispatch is the top-level request handler: health/version/apex
// responses, the service-worker asset, loop detection, CORS preflight, and
// route dispatch into the forwarder (spec.md §4.D).
package dispatch

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/manaflow-ai/cmux-proxy/internal/behavior"
	"github.com/manaflow-ai/cmux-proxy/internal/cmuxhost"
	"github.com/manaflow-ai/cmux-proxy/internal/config"
	"github.com/manaflow-ai/cmux-proxy/internal/forward"
	"github.com/manaflow-ai/cmux-proxy/internal/headers"
	"github.com/manaflow-ai/cmux-proxy/internal/httpx"
	"github.com/manaflow-ai/cmux-proxy/internal/metrics"
	"github.com/manaflow-ai/cmux-proxy/internal/rewrite"
	"github.com/manaflow-ai/cmux-proxy/internal/route"
)

// Dispatcher is the top-level http.Handler (component I).
type Dispatcher struct {
	State     *config.State
	Forwarder *forward.Forwarder
	Metrics   *metrics.Metrics
}

// New builds a Dispatcher wired to the given process state.
func New(st *config.State) *Dispatcher {
	m := metrics.New()
	return &Dispatcher{
		State: st,
		Forwarder: &forward.Forwarder{
			Client:        st.Upstream,
			BackendHost:   st.BackendHost,
			BackendScheme: st.BackendScheme,
			Metrics:       m,
		},
		Metrics: m,
	}
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
	defer func() { d.Metrics.IncStatus(sw.code) }()
	w = sw

	if r.Method == http.MethodGet && r.URL.Path == "/health" {
		d.serveHealth(w)
		return
	}

	host, ok := cmuxhost.Extract(r)
	if !ok {
		httpx.PlainError(w, http.StatusBadRequest, "Missing host header for proxied request")
		return
	}

	subdomain, hasSubdomain, _, recognized := cmuxhost.Parse(host)

	if r.Method == http.MethodGet && r.URL.Path == "/version" && !hasSubdomain && recognized {
		d.serveVersion(w)
		return
	}

	if !recognized {
		d.Metrics.IncRoute("invalid")
		httpx.PlainError(w, http.StatusBadGateway, "Not a cmux domain")
		return
	}

	if !hasSubdomain {
		d.Metrics.IncRoute("apex")
		httpx.PlainError(w, http.StatusOK, "cmux!")
		return
	}

	if r.URL.Path == "/proxy-sw.js" {
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(rewrite.ServiceWorkerJS))
		return
	}

	rt := route.Decode(subdomain)
	if rt.Kind == route.KindInvalid {
		d.Metrics.IncRoute("invalid")
		httpx.PlainError(w, rt.InvalidStatus, rt.InvalidBody)
		return
	}

	if headerContainsTrue(r.Header, "X-Cmux-Proxied") {
		d.Metrics.IncRoute(routeKindLabel(rt.Kind))
		httpx.PlainError(w, http.StatusLoopDetected, "Loop detected in proxy")
		return
	}

	d.Metrics.IncRoute(routeKindLabel(rt.Kind))

	b := behavior.Derive(rt)

	if r.Method == http.MethodOptions {
		if handled := d.servePreflight(w, rt, b); handled {
			return
		}
	}

	target := route.Resolve(rt, route.ResolveConfig{
		MorphDomainSuffix:     d.State.MorphDomainSuffix,
		WorkspaceDomainSuffix: d.State.WorkspaceDomainSuffix,
	})

	d.Forwarder.Serve(w, r, target, b, host)
}

func (d *Dispatcher) serveHealth(w http.ResponseWriter) {
	httpx.JSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (d *Dispatcher) serveVersion(w http.ResponseWriter) {
	httpx.JSON(w, http.StatusOK, map[string]string{
		"version":    d.State.Version,
		"git_commit": d.State.GitCommit,
	})
}

// servePreflight implements the OPTIONS matrix in spec.md §4.D step 9.
// Returns true if it wrote a response and the caller should stop.
func (d *Dispatcher) servePreflight(w http.ResponseWriter, rt route.Route, b behavior.ProxyBehavior) bool {
	switch rt.Kind {
	case route.KindPort:
		if rt.Port.Port == route.VSCodePort {
			w.WriteHeader(http.StatusNoContent)
			return true
		}
		return false
	case route.KindCmux:
		h := w.Header()
		if rt.Cmux.Port == route.VSCodePort {
			w.WriteHeader(http.StatusNoContent)
			return true
		}
		headers.AddCORS(h)
		w.WriteHeader(http.StatusNoContent)
		return true
	default:
		return false
	}
}

func headerContainsTrue(h http.Header, name string) bool {
	return strings.EqualFold(h.Get(name), "true")
}

// statusWriter records the final status code for metrics without altering
// response behavior; it passes Hijack through so the WebSocket upgrade path
// in internal/wsbridge still works when wrapped.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, fmt.Errorf("hijacker not supported")
}

func routeKindLabel(k route.Kind) string {
	switch k {
	case route.KindPort:
		return "port"
	case route.KindCmux:
		return "cmux"
	case route.KindWorkspace:
		return "workspace"
	default:
		return "invalid"
	}
}
