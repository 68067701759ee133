// Package headers implements the fixed-order header transformations that
// every outbound request/response passes through (spec.md §4.E). All
// operations are case-insensitive, matching net/http.Header's canonical
// storage.
package headers

import "net/http"

var payloadHeaders = []string{
	"Content-Length",
	"Content-Encoding",
	"Transfer-Encoding",
	"Content-Md5",
	"Content-Digest",
	"Etag",
}

var cspHeaders = []string{
	"Content-Security-Policy",
	"Content-Security-Policy-Report-Only",
	"X-Frame-Options",
	"Frame-Options",
}

// corsHeaders lists the seven access-control-* headers StripCORS removes
// and AddCORS's six overwrite (AddCORS never sets allow-private-network).
var corsHeaders = []string{
	"Access-Control-Allow-Origin",
	"Access-Control-Allow-Methods",
	"Access-Control-Allow-Headers",
	"Access-Control-Expose-Headers",
	"Access-Control-Allow-Credentials",
	"Access-Control-Max-Age",
	"Access-Control-Allow-Private-Network",
}

// Sanitize returns a copy of in with hop-by-hop bookkeeping untouched,
// optionally dropping the payload-metadata headers that no longer describe
// a rewritten body accurately (spec.md: sanitize(in, strip_payload)).
func Sanitize(in http.Header, stripPayload bool) http.Header {
	out := in.Clone()
	if out == nil {
		out = make(http.Header)
	}
	if stripPayload {
		for _, h := range payloadHeaders {
			out.Del(h)
		}
	}
	return out
}

// StripCSP drops every framing/CSP header so a later InjectFrameAncestors
// call is the only CSP present on the response.
func StripCSP(h http.Header) {
	for _, name := range cspHeaders {
		h.Del(name)
	}
}

// AddCORS overwrites the six CORS response headers with a permissive,
// wildcard-origin policy.
func AddCORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, PATCH, OPTIONS, HEAD")
	h.Set("Access-Control-Allow-Headers", "*")
	h.Set("Access-Control-Expose-Headers", "*")
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Access-Control-Max-Age", "86400")
}

// StripCORS removes all seven access-control-* headers, including
// allow-private-network which AddCORS never sets.
func StripCORS(h http.Header) {
	for _, name := range corsHeaders {
		h.Del(name)
	}
}

// InjectFrameAncestors sets content-security-policy to value. Must run
// after StripCSP so the injected value is the only CSP present (spec.md §9
// "CSP precedence").
func InjectFrameAncestors(h http.Header, value string) {
	h.Set("Content-Security-Policy", value)
}
