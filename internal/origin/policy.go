// Package origin implements the CORS origin resolution policy.
//
// The policy answers two distinct questions for every request:
//
//  1. Which origin, if any, may be reflected back to the browser in
//     Access-Control-Allow-Origin. Only an exact allow-list match qualifies.
//  2. Which origin to present to the upstream backend in the outgoing Origin
//     header, so the backend knows which frontend deployment is calling.
//     This falls back to a Host-header mapping and finally a fixed default.
//
// The two answers deliberately disagree for non-allow-listed callers: the
// fallback origin identifies a deployment to the backend but must never be
// reflected to an untrusted browser as "allowed".
package origin

import (
	"sort"
	"strings"

	"cricstats-proxy/internal/config"
)

// Resolution is the outcome of resolving a single request's origin.
type Resolution struct {
	// Origin is the canonical origin sent upstream in the Origin header.
	Origin string
	// AllowListed reports whether the caller's own Origin header matched the
	// allow-list exactly. Only then do CORS allow headers reflect it.
	AllowListed bool
}

// Policy resolves (Origin, Host) header pairs to a Resolution. It is immutable
// after construction and safe for concurrent use.
type Policy struct {
	allowed   map[string]bool
	fragments []string // sorted for deterministic matching
	byFrag    map[string]string
	fallback  string
}

// NewPolicy builds a Policy from the CORS configuration.
func NewPolicy(cfg config.CORSConfig) *Policy {
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = true
	}

	fragments := make([]string, 0, len(cfg.HostOrigins))
	byFrag := make(map[string]string, len(cfg.HostOrigins))
	for frag, o := range cfg.HostOrigins {
		fragments = append(fragments, frag)
		byFrag[frag] = o
	}
	sort.Strings(fragments)

	return &Policy{
		allowed:   allowed,
		fragments: fragments,
		byFrag:    byFrag,
		fallback:  cfg.DefaultOrigin,
	}
}

// Resolve maps the caller's Origin and Host headers to a Resolution.
//
// Matching is exact on Origin (case- and slash-sensitive: "https://a.example"
// and "https://a.example/" are different strings) and substring on Host.
func (p *Policy) Resolve(callerOrigin, host string) Resolution {
	if callerOrigin != "" && p.allowed[callerOrigin] {
		return Resolution{Origin: callerOrigin, AllowListed: true}
	}

	for _, frag := range p.fragments {
		if strings.Contains(host, frag) {
			return Resolution{Origin: p.byFrag[frag]}
		}
	}

	return Resolution{Origin: p.fallback}
}

// Allowed reports whether o is an exact allow-list member.
func (p *Policy) Allowed(o string) bool {
	return p.allowed[o]
}
