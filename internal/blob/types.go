// Package blob re-exports the blob contract and builds backends from config.
package blob

import (
	"context"

	"creatorstudio/internal/blob/core"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory driver.
	DriverMemory = core.DriverMemory
)

var (
	ErrNotFound   = core.ErrNotFound
	ErrExists     = core.ErrExists
	ErrInvalidKey = core.ErrInvalidKey
)

// ReadAll fetches the full content of key.
func ReadAll(ctx context.Context, s Store, key string) ([]byte, Info, error) {
	return core.ReadAll(ctx, s, key)
}

// Replace overwrites key with data without a window where key is absent.
func Replace(ctx context.Context, s Store, key string, data []byte, opts PutOptions) (Info, error) {
	return core.Replace(ctx, s, key, data, opts)
}

// DeletePrefix removes every blob under prefix.
func DeletePrefix(ctx context.Context, s Store, prefix string) (int, error) {
	return core.DeletePrefix(ctx, s, prefix)
}
