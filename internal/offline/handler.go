package offline

import (
	"errors"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// ExternalPath serves allow-listed third-party resources through the proxy:
// GET /_ext?url=<absolute url>.
const ExternalPath = "/_ext"

// Handler serves the application's assets through the coordinator so a local
// server keeps working offline. Paths map onto the manifest origin; foreign
// resources go through ExternalPath and must be allow-listed.
type Handler struct {
	c   *Coordinator
	log *zap.Logger
}

// NewHandler returns an http.Handler backed by c.
func NewHandler(c *Coordinator) *Handler {
	return &Handler{c: c, log: c.log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	target, ok := h.target(r)
	if !ok {
		http.Error(w, "resource is not allow-listed", http.StatusForbidden)
		return
	}
	out, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp, err := h.c.Fetch(r.Context(), out)
	switch {
	case errors.Is(err, ErrUnavailable):
		http.Error(w, "offline and not cached", http.StatusGatewayTimeout)
		return
	case err != nil:
		h.log.Debug("offline proxy fetch failed", zap.String("url", target), zap.Error(err))
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}
	defer func() { _ = resp.Body.Close() }()
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = io.Copy(w, resp.Body)
}

func (h *Handler) target(r *http.Request) (string, bool) {
	m := h.c.Manifest()
	if r.URL.Path == ExternalPath {
		raw := r.URL.Query().Get("url")
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() {
			return "", false
		}
		return u.String(), m.Cacheable(http.MethodGet, u.String())
	}
	base, err := m.origin()
	if err != nil {
		return "", false
	}
	ref := &url.URL{Path: "." + r.URL.Path, RawQuery: r.URL.RawQuery}
	return base.ResolveReference(ref).String(), true
}
