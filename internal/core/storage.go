package core

import (
	"context"
	"fmt"

	"creatorstudio/internal/blob"
	"creatorstudio/internal/infra/persistence/memdb"
	"creatorstudio/internal/infra/persistence/memory"
	"creatorstudio/internal/infra/persistence/postgres"
	"creatorstudio/internal/infra/persistence/sqlite"
	"creatorstudio/pkg/domain"
)

// StorageDriver identifies a concrete keyed medium.
type StorageDriver string

const (
	StorageSQLite   StorageDriver = "sqlite"   // indexed tables in an embedded sqlite file
	StorageMemDB    StorageDriver = "memdb"    // indexed in-memory tables (tests / ephemeral)
	StorageSnapshot StorageDriver = "snapshot" // whole dataset in memory, rewritten through a persister
)

// PersisterKind selects where the snapshot medium rewrites its dataset.
type PersisterKind string

const (
	PersisterNone     PersisterKind = "none"
	PersisterFile     PersisterKind = "file"
	PersisterSQLite   PersisterKind = "sqlite"
	PersisterPostgres PersisterKind = "postgres"
	PersisterBlob     PersisterKind = "blob"
)

// SnapshotConfig parameterizes StorageSnapshot.
type SnapshotConfig struct {
	Persister   PersisterKind `yaml:"persister" validate:"omitempty,oneof=none file sqlite postgres blob"`
	Path        string        `yaml:"path"` // file or sqlite path
	PostgresDSN string        `yaml:"postgres_dsn"`
	BlobPrefix  string        `yaml:"blob_prefix"`
}

// StorageConfig selects the medium backing the record store.
type StorageConfig struct {
	Driver     StorageDriver        `yaml:"driver" validate:"omitempty,oneof=sqlite memdb snapshot"`
	SQLitePath string               `yaml:"sqlite_path"`
	Snapshot   SnapshotConfig       `yaml:"snapshot"`
	Cascade    domain.CascadePolicy `yaml:"cascade" validate:"omitempty,oneof=leave delete detach"`
}

// OpenMedium opens the medium described by cfg. bs is only consulted by the
// blob snapshot persister and may be nil otherwise. Defaults to sqlite.
func OpenMedium(ctx context.Context, cfg StorageConfig, bs blob.Store) (domain.Medium, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	var (
		medium domain.Medium
		err    error
	)
	switch driver {
	case StorageSQLite:
		medium, err = sqlite.Open(ctx, cfg.SQLitePath)
	case StorageMemDB:
		medium, err = memdb.New()
	case StorageSnapshot:
		var p memory.Persister
		if p, err = openPersister(ctx, cfg.Snapshot, bs); err != nil {
			return nil, err
		}
		medium, err = memory.Open(ctx, p)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
	if err != nil {
		return nil, err
	}
	return medium, nil
}

func openPersister(ctx context.Context, cfg SnapshotConfig, bs blob.Store) (memory.Persister, error) {
	switch cfg.Persister {
	case "", PersisterNone:
		return memory.NopPersister{}, nil
	case PersisterFile:
		path := cfg.Path
		if path == "" {
			path = "creatorstudio.json"
		}
		return memory.NewFilePersister(path), nil
	case PersisterSQLite:
		p, err := sqlite.NewStatePersister(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return p, nil
	case PersisterPostgres:
		p, err := postgres.NewStatePersister(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return p, nil
	case PersisterBlob:
		if bs == nil {
			return nil, fmt.Errorf("blob persister requires a blob store")
		}
		return memory.NewBlobPersister(bs, cfg.BlobPrefix), nil
	default:
		return nil, fmt.Errorf("unknown snapshot persister %s", cfg.Persister)
	}
}

// OpenStore opens the configured medium and wraps it in a record store.
func OpenStore(ctx context.Context, cfg StorageConfig, bs blob.Store, opts ...Option) (*Store, error) {
	medium, err := OpenMedium(ctx, cfg, bs)
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithCascade(cfg.Cascade)}, opts...)
	return NewStore(medium, opts...), nil
}
