// Package statusserver exposes volguard's read-only JSON snapshot over a
// minimal line-based protocol on a raw net.Listener, deliberately not
// net/http: one request, one response, connection closed, per the
// protocol spec.md names for this endpoint.
package statusserver
