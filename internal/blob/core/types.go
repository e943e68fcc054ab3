// Package core defines the blob storage contract shared by the backends and
// the packages that keep cache generations and dataset snapshots in blobs.
package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Driver identifies a concrete blob storage backend implementation.
type Driver string

const (
	// DriverFilesystem stores blobs as files under a root directory.
	DriverFilesystem Driver = "fs"
	// DriverS3 stores blobs as objects in one S3 / MinIO bucket.
	DriverS3 Driver = "s3"
	// DriverMemory keeps blobs in process memory.
	DriverMemory Driver = "memory"
)

var (
	// ErrNotFound is returned by Get and Head for an absent key.
	ErrNotFound = errors.New("blob not found")
	// ErrExists is returned by Put when the key is already taken.
	ErrExists = errors.New("blob already exists")
	// ErrInvalidKey is returned for empty keys or keys escaping the store root.
	ErrInvalidKey = errors.New("invalid blob key")
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string            // MIME type, optional
	Metadata    map[string]string // small flat user metadata
	// Overwrite swaps an existing blob for the new one in a single step
	// instead of failing with ErrExists. Readers see the old or the new
	// content, never neither; a failed write leaves the old blob in place.
	Overwrite bool
}

// Info describes a stored blob.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is a flat, S3-like key space. Put is create-only unless
// PutOptions.Overwrite is set; List returns keys sorted ascending.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

// ReadAll fetches the full content of key.
func ReadAll(ctx context.Context, s Store, key string) ([]byte, Info, error) {
	info, rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, Info{}, err
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, Info{}, fmt.Errorf("read blob %s: %w", key, err)
	}
	return data, info, nil
}

// Replace overwrites key with data. The previous blob stays readable until
// the new one is in place and survives a failed write.
func Replace(ctx context.Context, s Store, key string, data []byte, opts PutOptions) (Info, error) {
	opts.Overwrite = true
	info, err := s.Put(ctx, key, bytes.NewReader(data), opts)
	if err != nil {
		return Info{}, fmt.Errorf("replace blob %s: %w", key, err)
	}
	return info, nil
}

// DeletePrefix removes every blob under prefix and returns how many went.
func DeletePrefix(ctx context.Context, s Store, prefix string) (int, error) {
	infos, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, info := range infos {
		ok, err := s.Delete(ctx, info.Key)
		if err != nil {
			return n, fmt.Errorf("delete blob %s: %w", info.Key, err)
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// CloneMetadata copies user metadata so callers never share maps with a store.
func CloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
