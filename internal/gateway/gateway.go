// Package gateway is the edge identity propagator: it terminates bearer
// tokens, re-emits trusted identity headers and forwards requests to the
// addressed upstream service.
package gateway

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strings"

	"edugate.org/internal/apperror"
	"edugate.org/internal/config"
	"edugate.org/internal/correlate"
	"edugate.org/internal/identity"
	"edugate.org/internal/obs"
	"edugate.org/internal/token"
)

type route struct {
	prefix string
	proxy  *httputil.ReverseProxy
}

// Gateway routes requests by static path prefix after resolving the caller's
// identity. Requests that fail required authentication never leave the edge.
type Gateway struct {
	routes   []route
	optional []string
	tokens   *token.Service
	respond  *apperror.Responder
}

// New builds the gateway from the static routing table. Longer prefixes win.
func New(cfg config.Gateway, tokens *token.Service, respond *apperror.Responder) (*Gateway, error) {
	if len(cfg.Routes) == 0 {
		return nil, fmt.Errorf("gateway: no routes configured")
	}
	g := &Gateway{
		tokens:   tokens,
		respond:  respond,
		optional: append([]string(nil), cfg.OptionalAuthPrefixes...),
	}
	for _, rc := range cfg.Routes {
		upstream, err := url.Parse(rc.Upstream)
		if err != nil {
			return nil, fmt.Errorf("gateway: route %s: parse upstream: %w", rc.Prefix, err)
		}
		proxy := httputil.NewSingleHostReverseProxy(upstream)
		proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			obs.LogError("upstream_unreachable", map[string]any{
				"request_id": obs.RequestIDFromContext(r.Context()),
				"path":       r.URL.Path,
				"error":      err.Error(),
			})
			respond.Write(w, r, apperror.Unavailable("upstream service unavailable"))
		}
		g.routes = append(g.routes, route{prefix: rc.Prefix, proxy: proxy})
	}
	sort.SliceStable(g.routes, func(i, j int) bool {
		return len(g.routes[i].prefix) > len(g.routes[j].prefix)
	})
	return g, nil
}

// ServeHTTP resolves identity and proxies. Identity headers from the client
// are always stripped first so only the edge can set them.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity.StripHeaders(r.Header)

	matched := g.match(r.URL.Path)
	if matched == nil {
		g.respond.Write(w, r, apperror.NotFound("no route for path"))
		return
	}
	optionalAuth := g.isOptional(r.URL.Path)

	raw, err := token.BearerFromHeader(r.Header.Get("Authorization"))
	if err != nil {
		// Absent token: reject before any upstream is reached, unless the
		// route only personalizes output when identity happens to be present.
		if optionalAuth {
			g.forward(matched, w, r)
			return
		}
		g.respond.Write(w, r, apperror.Unauthorized("missing bearer token"))
		return
	}

	principal, err := g.tokens.Verify(raw)
	if err != nil {
		if optionalAuth {
			g.forward(matched, w, r)
			return
		}
		g.respond.Write(w, r, apperror.Forbidden("token verification failed"))
		return
	}

	identity.SetHeaders(r.Header, principal)
	g.forward(matched, w, r)
}

func (g *Gateway) forward(rt *route, w http.ResponseWriter, r *http.Request) {
	if rid := obs.RequestIDFromContext(r.Context()); rid != "" {
		r.Header.Set(correlate.HeaderRequestID, rid)
	}
	rt.proxy.ServeHTTP(w, r)
}

func (g *Gateway) match(path string) *route {
	for i := range g.routes {
		if strings.HasPrefix(path, g.routes[i].prefix) {
			return &g.routes[i]
		}
	}
	return nil
}

func (g *Gateway) isOptional(path string) bool {
	for _, prefix := range g.optional {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
