package gateway

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
)

// Gateway is a reverse proxy that forwards only badge-bearing requests.
type Gateway struct {
	target  *url.URL
	handler http.Handler
}

// NewGateway creates a Gateway in front of targetURL.
func NewGateway(targetURL string, verifier Verifier, opts ...Option) (*Gateway, error) {
	target, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid target URL: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid target URL: %q needs a scheme and host", targetURL)
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Header.Del(HeaderBadge)
			if auth := pr.Out.Header.Get("Authorization"); len(auth) > 6 && strings.EqualFold(auth[:6], "Badge ") {
				pr.Out.Header.Del("Authorization")
			}
		},
	}

	return &Gateway{
		target:  target,
		handler: NewAuthMiddleware(verifier, proxy, opts...),
	}, nil
}

// Target returns the upstream URL.
func (g *Gateway) Target() *url.URL {
	return g.target
}

// ServeHTTP implements the http.Handler interface.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.handler.ServeHTTP(w, r)
}
