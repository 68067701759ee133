// Package route implements the subdomain grammar that turns a cmux
// subdomain into a concrete upstream Target. The behavior matrix for a
// decoded route lives in internal/behavior.
package route

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind tags which variant a Route holds.
type Kind int

const (
	KindPort Kind = iota
	KindCmux
	KindWorkspace
	KindInvalid
)

// VSCodePort is the well-known port that triggers service-worker skip,
// CORS-strip, and frame-ancestors CSP injection.
const VSCodePort = 39378

// Route is the closed sum produced by Decode. Exactly one of the Port/
// Cmux/Workspace fields is meaningful, selected by Kind; Invalid carries a
// status/body pair for a pre-built 400 response.
type Route struct {
	Kind Kind

	Port      PortRoute
	Cmux      CmuxRoute
	Workspace WorkspaceRoute

	InvalidStatus int
	InvalidBody   string
}

type PortRoute struct {
	Port              uint16
	MorphID           string
	SkipServiceWorker bool
}

type CmuxRoute struct {
	Port            uint16
	WorkspaceHeader string // empty means "not set"
	HasWorkspace    bool
	MorphID         string
}

type WorkspaceRoute struct {
	Workspace string
	Port      uint16
	VMSlug    string
}

func invalid(status int, body string) Route {
	return Route{Kind: KindInvalid, InvalidStatus: status, InvalidBody: body}
}

// Decode applies the grammar in spec.md §4.B to a non-empty subdomain
// string, trying "port-", "cmux-", and the workspace fallback in order.
func Decode(subdomain string) Route {
	if rest, ok := strings.CutPrefix(subdomain, "port-"); ok {
		return decodePort(rest)
	}
	if rest, ok := strings.CutPrefix(subdomain, "cmux-"); ok {
		return decodeCmux(rest)
	}
	return decodeWorkspace(subdomain)
}

func decodePort(rest string) Route {
	segments := strings.Split(rest, "-")
	if len(segments) < 2 {
		return invalid(400, "Invalid cmux proxy subdomain")
	}
	port, err := parsePort(segments[0])
	if err != nil {
		return invalid(400, "Invalid cmux proxy subdomain")
	}
	morphID := strings.Join(segments[1:], "-")
	if morphID == "" {
		return invalid(400, "Invalid cmux proxy subdomain")
	}
	return Route{
		Kind: KindPort,
		Port: PortRoute{
			Port:              port,
			MorphID:           morphID,
			SkipServiceWorker: port == VSCodePort,
		},
	}
}

func decodeCmux(rest string) Route {
	segments := strings.Split(rest, "-")
	if len(segments) < 2 {
		return invalid(400, "Invalid cmux proxy subdomain")
	}
	morphID := segments[0]
	if morphID == "" {
		return invalid(400, "Missing morph id in cmux proxy subdomain")
	}
	portSegment := segments[len(segments)-1]
	port, err := parsePort(portSegment)
	if err != nil {
		return invalid(400, "Invalid port in cmux proxy subdomain")
	}
	scopeSegments := segments[1 : len(segments)-1]
	header, has := workspaceHeaderFromScope(scopeSegments)
	return Route{
		Kind: KindCmux,
		Cmux: CmuxRoute{
			Port:            port,
			WorkspaceHeader: header,
			HasWorkspace:    has,
			MorphID:         morphID,
		},
	}
}

// workspaceHeaderFromScope implements the scope-extraction rule shared by
// the cmux- grammar (4.B case 2) and the WebSocket scope derivation
// (4.H step 2 / §9 "WS scope derivation").
func workspaceHeaderFromScope(scopeSegments []string) (string, bool) {
	if len(scopeSegments) == 0 {
		return "", false
	}
	if len(scopeSegments) == 1 && strings.EqualFold(scopeSegments[0], "base") {
		return "", false
	}
	return strings.Join(scopeSegments, "-"), true
}

func decodeWorkspace(subdomain string) Route {
	parts := strings.Split(subdomain, "-")
	if len(parts) < 3 {
		return invalid(400, "Invalid cmux subdomain")
	}
	portSegment := parts[len(parts)-2]
	vmSlug := parts[len(parts)-1]
	workspaceParts := parts[:len(parts)-2]
	if len(workspaceParts) == 0 {
		return invalid(400, "Invalid cmux subdomain")
	}
	port, err := parsePort(portSegment)
	if err != nil {
		return invalid(400, "Invalid port in subdomain")
	}
	if vmSlug == "" {
		return invalid(400, "Invalid cmux subdomain")
	}
	return Route{
		Kind: KindWorkspace,
		Workspace: WorkspaceRoute{
			Workspace: strings.Join(workspaceParts, "-"),
			Port:      port,
			VMSlug:    vmSlug,
		},
	}
}

func parsePort(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", s, err)
	}
	return uint16(v), nil
}

// ScopeFromCmuxSubdomain mirrors decodeCmux's scope rule for a subdomain
// known to start with "cmux-", used by internal/wsbridge to derive
// X-Cmux-Workspace-Internal when the dispatcher's behavior didn't already
// set one (spec.md §9 "WS scope derivation").
func ScopeFromCmuxSubdomain(subdomain string) (string, bool) {
	rest, ok := strings.CutPrefix(subdomain, "cmux-")
	if !ok {
		return "", false
	}
	segments := strings.Split(rest, "-")
	if len(segments) < 2 {
		return "", false
	}
	if _, err := parsePort(segments[len(segments)-1]); err != nil {
		return "", false
	}
	return workspaceHeaderFromScope(segments[1 : len(segments)-1])
}
