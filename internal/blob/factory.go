package blob

import (
	"context"
	"fmt"

	"creatorstudio/internal/infra/blob/fs"
	memorystore "creatorstudio/internal/infra/blob/memory"
	infraS3 "creatorstudio/internal/infra/blob/s3"
)

// S3Config re-exports the S3 backend configuration.
type S3Config = infraS3.Config

// Config selects and parameterizes a blob backend.
//
//	driver: fs|s3|memory (default fs)
//	root:   directory root when driver=fs (default ./blobdata)
//	s3:     bucket, region, endpoint, path_style when driver=s3
type Config struct {
	Driver Driver   `yaml:"driver" validate:"omitempty,oneof=fs s3 memory"`
	Root   string   `yaml:"root"`
	S3     S3Config `yaml:"s3"`
}

// Open constructs the blob.Store described by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.Root)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// NewFilesystem constructs a filesystem-backed blob.Store rooted at root.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}

// NewMemory returns an in-memory blob.Store.
func NewMemory() Store { return memorystore.New() }

// NewS3 constructs an S3-backed blob.Store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// NewMockS3ForTests exposes the in-memory S3 transport fake for cross-package tests.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }
