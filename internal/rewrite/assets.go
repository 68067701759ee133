package rewrite

import _ "embed"

// HeadScript records the pre-rewrite page location so client code that
// later runs under a rewritten URL can still see where it actually loaded.
const HeadScript = `<script data-cmux-injected="true">
window.__cmuxLocation = window.location;
</script>`

// ServiceWorkerScript registers the proxy's service worker, which rewrites
// loopback-hostname fetches issued by the page into routable cmux
// subdomains. Omitted for behaviors with SkipServiceWorker set.
const ServiceWorkerScript = `<script data-cmux-injected="true">
// __CMUX_NO_REWRITE__
if ('serviceWorker' in navigator) {
  navigator.serviceWorker.register('/proxy-sw.js', { scope: '/' }).catch(console.error);
}
</script>`

// ServiceWorkerJS is served verbatim at GET /proxy-sw.js (spec.md §6).
//
//go:embed proxy-sw.js
var ServiceWorkerJS string
