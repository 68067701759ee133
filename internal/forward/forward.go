// Package forward builds and issues the upstream HTTP request, applies the
// HEAD→GET fallback, and runs the response through the transform pipeline
// (spec.md §4.G, §4.I).
package forward

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/manaflow-ai/cmux-proxy/internal/behavior"
	"github.com/manaflow-ai/cmux-proxy/internal/headers"
	"github.com/manaflow-ai/cmux-proxy/internal/httpx"
	"github.com/manaflow-ai/cmux-proxy/internal/metrics"
	"github.com/manaflow-ai/cmux-proxy/internal/rewrite"
	"github.com/manaflow-ai/cmux-proxy/internal/route"
	"github.com/manaflow-ai/cmux-proxy/internal/wsbridge"
)

// Forwarder issues upstream requests for a resolved Target.
type Forwarder struct {
	Client        *http.Client
	BackendHost   string
	BackendScheme string

	// Metrics is optional; when set, Serve tracks the active-bridge gauge
	// around WebSocket upgrades.
	Metrics *metrics.Metrics
}

// stageError carries the HTTP status a transform-pipeline failure should
// surface, distinguishing a body-read failure (502) from a rewrite
// failure (500).
type stageError struct {
	status int
	msg    string
}

func (e *stageError) Error() string { return e.msg }

// Serve implements spec.md §4.G end to end. normalizedHost is passed
// through to the WebSocket bridge for workspace-scope derivation.
func (f *Forwarder) Serve(w http.ResponseWriter, r *http.Request, target route.Target, b behavior.ProxyBehavior, normalizedHost string) {
	if wsbridge.IsUpgradeRequest(r) {
		if f.Metrics != nil {
			f.Metrics.WSBridgeOpen()
			defer f.Metrics.WSBridgeClosed()
		}
		wsbridge.Bridge(w, r, target, f.BackendHost, f.BackendScheme, b, normalizedHost)
		return
	}

	authority := route.Authority(target, f.BackendHost)
	scheme := route.Scheme(target, f.BackendScheme)

	upstreamURL, err := buildUpstreamURL(scheme, authority, r.URL.RequestURI())
	if err != nil {
		httpx.PlainError(w, http.StatusBadGateway, "Failed to build upstream URI")
		return
	}

	upReq, err := http.NewRequestWithContext(r.Context(), r.Method, upstreamURL, r.Body)
	if err != nil {
		httpx.PlainError(w, http.StatusBadGateway, "Failed to build upstream URI")
		return
	}
	upReq.Header = r.Header.Clone()
	applyOutboundHeaders(upReq, authority, b)

	originalMethod := r.Method
	var fallbackHeaders http.Header
	var fallbackURL string
	if originalMethod == http.MethodHead {
		fallbackHeaders = upReq.Header.Clone()
		fallbackURL = upstreamURL
	}

	resp, err := f.Client.Do(upReq)
	if err != nil {
		httpx.PlainError(w, http.StatusBadGateway, "Upstream fetch failed")
		return
	}
	defer resp.Body.Close()

	if originalMethod == http.MethodHead && (resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented) {
		if f.tryHeadFallback(w, r, fallbackURL, fallbackHeaders, b) {
			return
		}
	}

	f.writeResponse(w, resp, b)
}

func buildUpstreamURL(scheme, authority, pathAndQuery string) (string, error) {
	raw := fmt.Sprintf("%s://%s%s", scheme, authority, pathAndQuery)
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func applyOutboundHeaders(req *http.Request, authority string, b behavior.ProxyBehavior) {
	req.Host = authority
	req.Header.Set("Host", authority)
	req.Header.Set("X-Cmux-Proxied", "true")
	if b.HasPortHeader {
		req.Header.Set("X-Cmux-Port-Internal", b.PortHeader)
	} else {
		req.Header.Del("X-Cmux-Port-Internal")
	}
	if b.HasWorkspace {
		req.Header.Set("X-Cmux-Workspace-Internal", b.WorkspaceHeader)
	} else {
		req.Header.Del("X-Cmux-Workspace-Internal")
	}
}

// tryHeadFallback re-issues the captured HEAD request as GET, runs the
// normal transform pipeline, drains the transformed body to measure its
// true length, and writes a HEAD-shaped response. Returns false (with no
// writes to w) if the fallback itself fails, so the caller falls through
// to transforming the original HEAD response.
func (f *Forwarder) tryHeadFallback(w http.ResponseWriter, r *http.Request, upstreamURL string, hdrs http.Header, b behavior.ProxyBehavior) bool {
	getReq, err := http.NewRequestWithContext(r.Context(), http.MethodGet, upstreamURL, nil)
	if err != nil {
		return false
	}
	getReq.Header = hdrs.Clone()
	getReq.Header.Del("Content-Length")

	resp, err := f.Client.Do(getReq)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	header, body, err := bufferTransformed(resp, b)
	if err != nil {
		return false
	}

	header.Del("Content-Length")
	header.Del("Transfer-Encoding")
	header.Set("Content-Length", strconv.Itoa(len(body)))
	if !b.StripCORSHeaders {
		headers.AddCORS(header)
	}

	writeHeader(w, header)
	w.WriteHeader(resp.StatusCode)
	return true
}

// writeResponse implements spec.md §4.I: buffer+rewrite for text/html,
// stream unchanged otherwise.
func (f *Forwarder) writeResponse(w http.ResponseWriter, resp *http.Response, b behavior.ProxyBehavior) {
	if isHTML(resp) {
		header, body, err := htmlTransform(resp, b)
		if err != nil {
			if se, ok := err.(*stageError); ok {
				httpx.PlainError(w, se.status, se.msg)
				return
			}
			httpx.PlainError(w, http.StatusBadGateway, "Failed to read upstream body")
			return
		}
		writeHeader(w, header)
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(body)
		return
	}

	header := nonHTMLHeader(resp, b)
	writeHeader(w, header)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func isHTML(resp *http.Response) bool {
	return strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "text/html")
}

// htmlTransform reads the full body, rewrites it, and returns the
// sanitized+CSP+CORS+frame-ancestors header set alongside the rewritten
// bytes.
func htmlTransform(resp *http.Response, b behavior.ProxyBehavior) (http.Header, []byte, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &stageError{status: http.StatusBadGateway, msg: "Failed to read upstream body"}
	}
	var out bytes.Buffer
	if err := rewrite.HTML(&out, bytes.NewReader(raw), b.SkipServiceWorker); err != nil {
		return nil, nil, &stageError{status: http.StatusInternalServerError, msg: "HTML rewrite failed"}
	}
	header := headers.Sanitize(resp.Header, true)
	applyResponsePolicy(header, b)
	header.Set("Content-Length", strconv.Itoa(out.Len()))
	return header, out.Bytes(), nil
}

func nonHTMLHeader(resp *http.Response, b behavior.ProxyBehavior) http.Header {
	header := headers.Sanitize(resp.Header, false)
	applyResponsePolicy(header, b)
	return header
}

// bufferTransformed runs the same pipeline as writeResponse but always
// materializes the full body, regardless of content type — needed by the
// HEAD fallback to measure the rewritten length.
func bufferTransformed(resp *http.Response, b behavior.ProxyBehavior) (http.Header, []byte, error) {
	if isHTML(resp) {
		return htmlTransform(resp, b)
	}
	header := nonHTMLHeader(resp, b)
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return header, body, nil
}

func applyResponsePolicy(h http.Header, b behavior.ProxyBehavior) {
	headers.StripCSP(h)
	if b.StripCORSHeaders {
		headers.StripCORS(h)
	} else if b.AddCORS {
		headers.AddCORS(h)
	}
	if b.HasFrameAncestors {
		headers.InjectFrameAncestors(h, b.FrameAncestors)
	}
}

func writeHeader(w http.ResponseWriter, h http.Header) {
	dst := w.Header()
	for k := range dst {
		dst.Del(k)
	}
	for k, vs := range h {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}
