// Package rewrite streams an upstream HTML response through a tokenizer,
// injecting the cmux bootstrap scripts into <head> and dropping any
// meta-tag CSP so the later-applied header-level CSP is authoritative
// (spec.md §4.F).
package rewrite

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTML rewrites r's token stream into w. skipServiceWorker matches
// ProxyBehavior.SkipServiceWorker: when true, only HeadScript is injected.
//
// The tokenizer consumes r incrementally (one token at a time) even though
// callers of this package buffer the full body first to recompute
// Content-Length — see internal/forward, which is where that buffering
// happens, not here.
func HTML(w io.Writer, r io.Reader, skipServiceWorker bool) error {
	z := html.NewTokenizer(r)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err == io.EOF {
				return nil
			}
			return z.Err()
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if tt == html.StartTagToken && atom.Lookup(name) == atom.Head {
				if _, err := w.Write(z.Raw()); err != nil {
					return err
				}
				if !skipServiceWorker {
					if _, err := io.WriteString(w, ServiceWorkerScript); err != nil {
						return err
					}
				}
				if _, err := io.WriteString(w, HeadScript); err != nil {
					return err
				}
				continue
			}
			if atom.Lookup(name) == atom.Meta && isCSPMeta(z, hasAttr) {
				continue // drop the element entirely
			}
			if _, err := w.Write(z.Raw()); err != nil {
				return err
			}
		default:
			if _, err := w.Write(z.Raw()); err != nil {
				return err
			}
		}
	}
}

// isCSPMeta reports whether the current <meta> token's http-equiv
// attribute equals "content-security-policy", case-insensitively.
func isCSPMeta(z *html.Tokenizer, hasAttr bool) bool {
	if !hasAttr {
		return false
	}
	for {
		key, val, more := z.TagAttr()
		if strings.EqualFold(string(key), "http-equiv") && strings.EqualFold(string(val), "content-security-policy") {
			return true
		}
		if !more {
			return false
		}
	}
}
