// Package behavior derives the ProxyBehavior record that governs the
// transformation pipeline from a decoded Route (spec.md §4.D behavior
// matrix). It is a pure function: no I/O, no upstream dependency.
package behavior

import (
	"strconv"

	"github.com/manaflow-ai/cmux-proxy/internal/route"
)

// FrameAncestorsVSCode is the CSP value injected for VSCode-port (39378)
// routes, reproduced verbatim from spec.md §6.
const FrameAncestorsVSCode = "frame-ancestors 'self' https://cmux.local http://cmux.local https://www.cmux.sh https://cmux.sh https://www.cmux.dev https://cmux.dev http://localhost:5173;"

// ProxyBehavior governs header rewriting for one request. AddCORS and
// StripCORSHeaders are never both true.
type ProxyBehavior struct {
	SkipServiceWorker bool
	AddCORS           bool
	StripCORSHeaders  bool

	WorkspaceHeader string
	HasWorkspace    bool
	PortHeader      string
	HasPortHeader   bool

	FrameAncestors string
	HasFrameAncestors bool
}

// Derive implements the behavior matrix in spec.md §4.D.
func Derive(r route.Route) ProxyBehavior {
	switch r.Kind {
	case route.KindPort:
		if r.Port.Port == route.VSCodePort {
			return ProxyBehavior{
				SkipServiceWorker: true,
				StripCORSHeaders:  true,
				FrameAncestors:    FrameAncestorsVSCode,
				HasFrameAncestors: true,
			}
		}
		return ProxyBehavior{}
	case route.KindCmux:
		isVSCode := r.Cmux.Port == route.VSCodePort
		b := ProxyBehavior{
			SkipServiceWorker: true,
			AddCORS:           !isVSCode,
			StripCORSHeaders:  isVSCode,
			PortHeader:        portString(r.Cmux.Port),
			HasPortHeader:     true,
		}
		if r.Cmux.HasWorkspace {
			b.WorkspaceHeader = r.Cmux.WorkspaceHeader
			b.HasWorkspace = true
		}
		return b
	case route.KindWorkspace:
		return ProxyBehavior{
			WorkspaceHeader: r.Workspace.Workspace,
			HasWorkspace:    true,
			PortHeader:      portString(r.Workspace.Port),
			HasPortHeader:   true,
		}
	default:
		return ProxyBehavior{}
	}
}

func portString(p uint16) string {
	return strconv.FormatUint(uint64(p), 10)
}
