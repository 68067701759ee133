package cmuxhost

import (
	"net/http"
	"testing"
)

func TestExtractPrefersForwardedHost(t *testing.T) {
	r := &http.Request{Header: http.Header{}}
	r.Header.Set("X-Forwarded-Host", "Port-5173-abc.CMUX.SH")
	r.Header.Set("Host", "ignored.example.com")
	got, ok := Extract(r)
	if !ok || got != "port-5173-abc.cmux.sh" {
		t.Fatalf("got %q, %v", got, ok)
	}
}

func TestExtractFallsBackToHostHeader(t *testing.T) {
	r := &http.Request{Header: http.Header{}}
	r.Header.Set("Host", "cmux.sh:8080")
	got, ok := Extract(r)
	if !ok || got != "cmux.sh" {
		t.Fatalf("got %q, %v, want port stripped", got, ok)
	}
}

func TestExtractMissing(t *testing.T) {
	r := &http.Request{Header: http.Header{}}
	if _, ok := Extract(r); ok {
		t.Fatalf("expected ok=false with no usable host")
	}
}

func TestParseApexes(t *testing.T) {
	for _, apex := range []string{ApexSh, ApexLocalhost, ApexApp} {
		sub, has, gotApex, ok := Parse(apex)
		if !ok || has || sub != "" || gotApex != apex {
			t.Fatalf("apex %q: got sub=%q has=%v apex=%q ok=%v", apex, sub, has, gotApex, ok)
		}
	}
}

func TestParseLocalCNAME(t *testing.T) {
	sub, has, apex, ok := Parse("cmux.local")
	if !ok || has || sub != "" || apex != ApexSh {
		t.Fatalf("got sub=%q has=%v apex=%q ok=%v", sub, has, apex, ok)
	}
}

func TestParseSubdomain(t *testing.T) {
	sub, has, apex, ok := Parse("port-5173-abc.cmux.sh")
	if !ok || !has || sub != "port-5173-abc" || apex != ApexSh {
		t.Fatalf("got sub=%q has=%v apex=%q ok=%v", sub, has, apex, ok)
	}
}

func TestParseUnrecognized(t *testing.T) {
	_, has, _, ok := Parse("example.com")
	if ok || has {
		t.Fatalf("expected unrecognized host to fail")
	}
}
