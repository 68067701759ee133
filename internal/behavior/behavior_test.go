package behavior

import (
	"testing"

	"github.com/manaflow-ai/cmux-proxy/internal/route"
)

func TestDerivePortRouteNonVSCode(t *testing.T) {
	r := route.Route{Kind: route.KindPort, Port: route.PortRoute{Port: 5173}}
	b := Derive(r)
	if b.SkipServiceWorker || b.AddCORS || b.StripCORSHeaders || b.HasFrameAncestors {
		t.Fatalf("got %+v, want all-false behavior", b)
	}
}

func TestDerivePortRouteVSCode(t *testing.T) {
	r := route.Route{Kind: route.KindPort, Port: route.PortRoute{Port: route.VSCodePort}}
	b := Derive(r)
	if !b.SkipServiceWorker || b.AddCORS || !b.StripCORSHeaders {
		t.Fatalf("got %+v", b)
	}
	if !b.HasFrameAncestors || b.FrameAncestors != FrameAncestorsVSCode {
		t.Fatalf("expected VSCode CSP string, got %+v", b)
	}
}

func TestDeriveCmuxRouteNonVSCode(t *testing.T) {
	r := route.Route{Kind: route.KindCmux, Cmux: route.CmuxRoute{Port: 3000, HasWorkspace: true, WorkspaceHeader: "team"}}
	b := Derive(r)
	if !b.SkipServiceWorker || !b.AddCORS || b.StripCORSHeaders {
		t.Fatalf("got %+v", b)
	}
	if !b.HasPortHeader || b.PortHeader != "3000" {
		t.Fatalf("expected port header 3000, got %+v", b)
	}
	if !b.HasWorkspace || b.WorkspaceHeader != "team" {
		t.Fatalf("expected workspace header team, got %+v", b)
	}
}

func TestDeriveCmuxRouteVSCode(t *testing.T) {
	r := route.Route{Kind: route.KindCmux, Cmux: route.CmuxRoute{Port: route.VSCodePort}}
	b := Derive(r)
	if !b.SkipServiceWorker || b.AddCORS || !b.StripCORSHeaders {
		t.Fatalf("got %+v", b)
	}
	if b.HasWorkspace {
		t.Fatalf("expected no workspace header, got %+v", b)
	}
}

func TestDeriveWorkspaceRoute(t *testing.T) {
	r := route.Route{Kind: route.KindWorkspace, Workspace: route.WorkspaceRoute{Workspace: "ws1", Port: 4000, VMSlug: "vm1"}}
	b := Derive(r)
	if b.SkipServiceWorker || b.AddCORS || b.StripCORSHeaders {
		t.Fatalf("got %+v", b)
	}
	if !b.HasWorkspace || b.WorkspaceHeader != "ws1" {
		t.Fatalf("got %+v", b)
	}
	if !b.HasPortHeader || b.PortHeader != "4000" {
		t.Fatalf("got %+v", b)
	}
}

func TestAddCORSAndStripCORSNeverBothTrue(t *testing.T) {
	routes := []route.Route{
		{Kind: route.KindPort, Port: route.PortRoute{Port: 5173}},
		{Kind: route.KindPort, Port: route.PortRoute{Port: route.VSCodePort}},
		{Kind: route.KindCmux, Cmux: route.CmuxRoute{Port: 3000}},
		{Kind: route.KindCmux, Cmux: route.CmuxRoute{Port: route.VSCodePort}},
		{Kind: route.KindWorkspace, Workspace: route.WorkspaceRoute{Port: 4000}},
	}
	for _, r := range routes {
		b := Derive(r)
		if b.AddCORS && b.StripCORSHeaders {
			t.Fatalf("route %+v produced both AddCORS and StripCORSHeaders", r)
		}
	}
}
