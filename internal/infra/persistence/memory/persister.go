package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"creatorstudio/internal/blob"
)

// NopPersister keeps the dataset in memory only.
type NopPersister struct{}

func (NopPersister) Load(context.Context) (Snapshot, error) { return Snapshot{Version: SnapshotVersion}, nil }
func (NopPersister) Save(context.Context, Snapshot) error    { return nil }

// FilePersister stores the snapshot as one JSON document. Save writes a
// sibling temp file, syncs it and renames it over the previous document.
type FilePersister struct {
	Path string
}

// NewFilePersister returns a persister writing to path.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{Path: path}
}

func (p *FilePersister) Load(context.Context) (Snapshot, error) {
	b, err := os.ReadFile(p.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{Version: SnapshotVersion}, nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	var snapshot Snapshot
	if err := json.Unmarshal(b, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("decode %s: %w", p.Path, err)
	}
	return snapshot, nil
}

func (p *FilePersister) Save(_ context.Context, snapshot Snapshot) error {
	b, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(p.Path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err = tmp.Write(b); err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p.Path)
}

// BlobPersister stores every snapshot as a new immutable blob named
// <prefix>/<ulid>.json. Load picks the lexically greatest key, which is the
// newest version; Save prunes older versions once the new one is written.
type BlobPersister struct {
	store  blob.Store
	prefix string

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewBlobPersister returns a persister writing versions under prefix.
func NewBlobPersister(store blob.Store, prefix string) *BlobPersister {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "snapshots"
	}
	return &BlobPersister{store: store, prefix: prefix, entropy: ulid.Monotonic(ulid.DefaultEntropy(), 0)}
}

func (p *BlobPersister) versions(ctx context.Context) ([]blob.Info, error) {
	infos, err := p.store.List(ctx, p.prefix+"/")
	if err != nil {
		return nil, err
	}
	out := infos[:0]
	for _, info := range infos {
		if strings.HasSuffix(info.Key, ".json") {
			out = append(out, info)
		}
	}
	return out, nil
}

func (p *BlobPersister) Load(ctx context.Context) (Snapshot, error) {
	versions, err := p.versions(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list snapshot versions: %w", err)
	}
	if len(versions) == 0 {
		return Snapshot{Version: SnapshotVersion}, nil
	}
	latest := versions[len(versions)-1].Key
	data, _, err := blob.ReadAll(ctx, p.store, latest)
	if err != nil {
		return Snapshot{}, err
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("decode %s: %w", latest, err)
	}
	return snapshot, nil
}

func (p *BlobPersister) Save(ctx context.Context, snapshot Snapshot) error {
	b, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id, err := ulid.New(ulid.Now(), p.entropy)
	if err != nil {
		return err
	}
	key := p.prefix + "/" + id.String() + ".json"
	if _, err := p.store.Put(ctx, key, bytes.NewReader(b), blob.PutOptions{ContentType: "application/json"}); err != nil {
		return err
	}
	versions, err := p.versions(ctx)
	if err != nil {
		// the new version is durable; stale ones are pruned on the next save
		return nil
	}
	for _, v := range versions {
		if v.Key < key {
			_, _ = p.store.Delete(ctx, v.Key)
		}
	}
	return nil
}
