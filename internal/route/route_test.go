package route

import "testing"

func TestDecodePortRoute(t *testing.T) {
	cases := []struct {
		name       string
		subdomain  string
		wantPort   uint16
		wantMorph  string
		wantSkipSW bool
	}{
		{"simple", "port-5173-abc123", 5173, "abc123", false},
		{"hyphenated morph id", "port-8080-morph-abc-def", 8080, "morph-abc-def", false},
		{"vscode port", "port-39378-xxx", 39378, "xxx", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := Decode(c.subdomain)
			if r.Kind != KindPort {
				t.Fatalf("kind = %v, want KindPort", r.Kind)
			}
			if r.Port.Port != c.wantPort || r.Port.MorphID != c.wantMorph || r.Port.SkipServiceWorker != c.wantSkipSW {
				t.Fatalf("got %+v, want port=%d morph=%q skipSW=%v", r.Port, c.wantPort, c.wantMorph, c.wantSkipSW)
			}
		})
	}
}

func TestDecodePortRouteInvalid(t *testing.T) {
	for _, subdomain := range []string{"port-notanumber-abc", "port-5173", "port-5173-"} {
		r := Decode(subdomain)
		if r.Kind != KindInvalid {
			t.Fatalf("subdomain %q: kind = %v, want KindInvalid", subdomain, r.Kind)
		}
	}
}

func TestDecodeCmuxRouteScope(t *testing.T) {
	cases := []struct {
		name         string
		subdomain    string
		wantPort     uint16
		wantMorph    string
		wantHeader   string
		wantHasScope bool
	}{
		{"scope base lowercase", "cmux-morph9-base-3000", 3000, "morph9", "", false},
		{"scope BASE uppercase", "cmux-morph9-BASE-3000", 3000, "morph9", "", false},
		{"scope empty", "cmux-morph9-3000", 3000, "morph9", "", false},
		{"scope team", "cmux-morphA-team-4000", 4000, "morphA", "team", true},
		{"scope multi-segment", "cmux-morphA-team-alpha-4000", 4000, "morphA", "team-alpha", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := Decode(c.subdomain)
			if r.Kind != KindCmux {
				t.Fatalf("kind = %v, want KindCmux", r.Kind)
			}
			if r.Cmux.Port != c.wantPort || r.Cmux.MorphID != c.wantMorph {
				t.Fatalf("got port=%d morph=%q, want port=%d morph=%q", r.Cmux.Port, r.Cmux.MorphID, c.wantPort, c.wantMorph)
			}
			if r.Cmux.HasWorkspace != c.wantHasScope || r.Cmux.WorkspaceHeader != c.wantHeader {
				t.Fatalf("got hasScope=%v header=%q, want hasScope=%v header=%q", r.Cmux.HasWorkspace, r.Cmux.WorkspaceHeader, c.wantHasScope, c.wantHeader)
			}
		})
	}
}

func TestDecodeWorkspaceRoute(t *testing.T) {
	r := Decode("my-workspace-3000-vm1")
	if r.Kind != KindWorkspace {
		t.Fatalf("kind = %v, want KindWorkspace", r.Kind)
	}
	if r.Workspace.Workspace != "my-workspace" || r.Workspace.Port != 3000 || r.Workspace.VMSlug != "vm1" {
		t.Fatalf("got %+v", r.Workspace)
	}
}

func TestDecodeWorkspaceRouteInvalid(t *testing.T) {
	r := Decode("onlytwo-parts")
	if r.Kind != KindInvalid {
		t.Fatalf("kind = %v, want KindInvalid", r.Kind)
	}
}

func TestScopeFromCmuxSubdomain(t *testing.T) {
	if _, ok := ScopeFromCmuxSubdomain("cmux-morph9-base-3000"); ok {
		t.Fatalf("expected no scope for base")
	}
	scope, ok := ScopeFromCmuxSubdomain("cmux-morphA-team-4000")
	if !ok || scope != "team" {
		t.Fatalf("got scope=%q ok=%v, want team/true", scope, ok)
	}
	if _, ok := ScopeFromCmuxSubdomain("port-5173-abc"); ok {
		t.Fatalf("expected ScopeFromCmuxSubdomain to reject non-cmux subdomain")
	}
}

func TestResolve(t *testing.T) {
	t.Run("port route no suffix", func(t *testing.T) {
		r := Route{Kind: KindPort, Port: PortRoute{Port: 5173, MorphID: "abc"}}
		target := Resolve(r, ResolveConfig{})
		if target.Kind != TargetBackendPort || target.BackendPort != 5173 {
			t.Fatalf("got %+v", target)
		}
	})

	t.Run("port route with morph suffix", func(t *testing.T) {
		r := Route{Kind: KindPort, Port: PortRoute{Port: 5173, MorphID: "abc"}}
		target := Resolve(r, ResolveConfig{MorphDomainSuffix: ".morph.example.com"})
		if target.Kind != TargetAbsolute || target.Host != "port-5173-morphvm-abc.morph.example.com" {
			t.Fatalf("got %+v", target)
		}
	})

	t.Run("cmux route with morph suffix uses fixed 39379", func(t *testing.T) {
		r := Route{Kind: KindCmux, Cmux: CmuxRoute{Port: 3000, MorphID: "morph9"}}
		target := Resolve(r, ResolveConfig{MorphDomainSuffix: ".morph.example.com"})
		if target.Kind != TargetAbsolute || target.Host != "port-39379-morphvm-morph9.morph.example.com" {
			t.Fatalf("got %+v, want fixed 39379 host", target)
		}
	})

	t.Run("workspace route with suffix", func(t *testing.T) {
		r := Route{Kind: KindWorkspace, Workspace: WorkspaceRoute{Workspace: "ws", Port: 3000, VMSlug: "vm1"}}
		target := Resolve(r, ResolveConfig{WorkspaceDomainSuffix: ".vm.example.com"})
		if target.Kind != TargetAbsolute || target.Host != "vm1.vm.example.com" {
			t.Fatalf("got %+v", target)
		}
	})
}

func TestAuthority(t *testing.T) {
	backendTarget := Target{Kind: TargetBackendPort, BackendPort: 3000}
	if got := Authority(backendTarget, "backend.internal"); got != "backend.internal:3000" {
		t.Fatalf("got %q", got)
	}
	absTarget := Target{Kind: TargetAbsolute, Host: "vm1.example.com"}
	if got := Authority(absTarget, "backend.internal"); got != "vm1.example.com" {
		t.Fatalf("got %q", got)
	}
}
