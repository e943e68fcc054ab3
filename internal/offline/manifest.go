// Package offline keeps the application's static assets available without a
// network. A Coordinator installs a versioned generation of cached responses
// into a blob store, activates it, and then serves intercepted requests
// cache-first while refreshing entries in the background.
package offline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// DefaultPrefix is the generation name prefix used when a manifest sets none.
const DefaultPrefix = "creator-cache"

// Manifest is the fixed list of resources a generation is seeded with.
type Manifest struct {
	// Origin is the application's own scheme://host[:port].
	Origin string `yaml:"origin" json:"origin" validate:"required,url"`
	// Assets are same-origin paths, resolved against Origin.
	Assets []string `yaml:"assets" json:"assets"`
	// ThirdParty are absolute URLs fetched from other origins.
	ThirdParty []string `yaml:"third_party" json:"thirdParty" validate:"dive,url"`
	// AllowPrefixes lists foreign URL prefixes whose responses may be written
	// back during refresh. The own origin is always allowed.
	AllowPrefixes []string `yaml:"allow_prefixes" json:"allowPrefixes"`
	Prefix        string   `yaml:"prefix" json:"prefix"`
	Version       string   `yaml:"version" json:"version" validate:"required"`
}

// DefaultManifest is the asset set of the creator studio front end.
func DefaultManifest(origin string) Manifest {
	return Manifest{
		Origin: origin,
		Assets: []string{
			"./",
			"./index.html",
			"./styles.css",
			"./app.js",
			"./db.js",
			"./manifest.webmanifest",
			"./icons/icon-192.png",
			"./icons/icon-512.png",
		},
		ThirdParty: []string{
			"https://unpkg.com/three@0.160.0/build/three.min.js",
			"https://unpkg.com/three@0.160.0/examples/js/controls/OrbitControls.js",
		},
		AllowPrefixes: []string{"https://unpkg.com/"},
		Prefix:        DefaultPrefix,
		Version:       "v1",
	}
}

// Generation names the cache generation for this manifest. Any change to the
// manifest content yields a different name.
func (m Manifest) Generation() string {
	prefix := m.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	h := sha256.New()
	fmt.Fprintf(h, "origin=%s\n", m.Origin)
	for _, a := range m.Assets {
		fmt.Fprintf(h, "asset=%s\n", a)
	}
	for _, u := range m.ThirdParty {
		fmt.Fprintf(h, "third=%s\n", u)
	}
	for _, p := range m.AllowPrefixes {
		fmt.Fprintf(h, "allow=%s\n", p)
	}
	fmt.Fprintf(h, "version=%s\n", m.Version)
	return fmt.Sprintf("%s-%s-%s", prefix, m.Version, hex.EncodeToString(h.Sum(nil))[:8])
}

// URLs resolves every manifest entry to an absolute URL, assets first.
func (m Manifest) URLs() ([]string, error) {
	base, err := m.origin()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(m.Assets)+len(m.ThirdParty))
	for _, a := range m.Assets {
		ref, err := url.Parse(a)
		if err != nil {
			return nil, fmt.Errorf("asset %q: %w", a, err)
		}
		u := base.ResolveReference(ref)
		if !sameOrigin(u, base) {
			return nil, fmt.Errorf("asset %q resolves outside origin %s", a, m.Origin)
		}
		out = append(out, u.String())
	}
	for _, raw := range m.ThirdParty {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() {
			return nil, fmt.Errorf("third-party url %q is not absolute", raw)
		}
		out = append(out, u.String())
	}
	return out, nil
}

// Cacheable reports whether a successful response to method+rawURL may be
// written into the generation.
func (m Manifest) Cacheable(method, rawURL string) bool {
	if method != "" && method != "GET" {
		return false
	}
	if strings.HasPrefix(rawURL, strings.TrimRight(m.Origin, "/")+"/") || rawURL == strings.TrimRight(m.Origin, "/") {
		return true
	}
	for _, p := range m.AllowPrefixes {
		if p != "" && strings.HasPrefix(rawURL, p) {
			return true
		}
	}
	return false
}

func (m Manifest) origin() (*url.URL, error) {
	base, err := url.Parse(m.Origin)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("manifest origin %q is not an absolute url", m.Origin)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	return base, nil
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}

// identity is the lookup key of a request: method plus URL without fragment.
func identity(method, rawURL string) string {
	if method == "" {
		method = "GET"
	}
	return method + " " + withoutFragment(rawURL)
}
