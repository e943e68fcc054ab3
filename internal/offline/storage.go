package offline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"creatorstudio/internal/blob"
)

const (
	defaultRoot = "offline"
	markerName  = ".generation"
)

// entry is a stored response.
type entry struct {
	Method   string      `json:"method"`
	URL      string      `json:"url"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header,omitempty"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"storedAt"`
}

func (e *entry) response(req *http.Request) *http.Response {
	h := e.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Length", strconv.Itoa(len(e.Body)))
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// generations lays cache generations out in a blob store:
//
//	<root>/<generation>/.generation        marker, written first
//	<root>/<generation>/<sha256(identity)> one JSON-encoded entry per request
type generations struct {
	blobs blob.Store
	root  string
}

func newGenerations(bs blob.Store, root string) *generations {
	root = strings.Trim(root, "/")
	if root == "" {
		root = defaultRoot
	}
	return &generations{blobs: bs, root: root}
}

func (g *generations) dir(gen string) string { return g.root + "/" + gen + "/" }

func entryName(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}

// create writes the marker of gen, replacing one left by an earlier install.
func (g *generations) create(ctx context.Context, gen string) error {
	_, err := blob.Replace(ctx, g.blobs, g.dir(gen)+markerName, []byte(gen), blob.PutOptions{ContentType: "text/plain"})
	return err
}

// list returns the names of every generation with a marker, sorted.
func (g *generations) list(ctx context.Context) ([]string, error) {
	infos, err := g.blobs.List(ctx, g.root+"/")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, info := range infos {
		rest := strings.TrimPrefix(info.Key, g.root+"/")
		name, ok := strings.CutSuffix(rest, "/"+markerName)
		if ok && name != "" && !strings.Contains(name, "/") {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (g *generations) drop(ctx context.Context, gen string) error {
	_, err := blob.DeletePrefix(ctx, g.blobs, g.dir(gen))
	return err
}

func (g *generations) read(ctx context.Context, gen, id string) (*entry, bool, error) {
	data, _, err := blob.ReadAll(ctx, g.blobs, g.dir(gen)+entryName(id))
	if errors.Is(err, blob.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false, fmt.Errorf("decode cache entry %s: %w", id, err)
	}
	return &e, true, nil
}

func (g *generations) write(ctx context.Context, gen string, e *entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	key := g.dir(gen) + entryName(identity(e.Method, e.URL))
	_, err = blob.Replace(ctx, g.blobs, key, data, blob.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"status": strconv.Itoa(e.Status)},
	})
	return err
}

// count returns the number of entries stored in gen.
func (g *generations) count(ctx context.Context, gen string) (int, error) {
	infos, err := g.blobs.List(ctx, g.dir(gen))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, info := range infos {
		if !strings.HasSuffix(info.Key, "/"+markerName) {
			n++
		}
	}
	return n, nil
}
