package loader

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/chriskuehl/vcfrange/variants/config"
	"github.com/chriskuehl/vcfrange/variants/record"
	"github.com/chriskuehl/vcfrange/variants/storage"
)

type filesystemStorageBackend struct {
	Root string `toml:"root"`
}

type s3StorageBackend struct {
	Region   string `toml:"region"`
	Endpoint string `toml:"endpoint,omitempty"`
}

type gcsStorageBackend struct {
	Endpoint string `toml:"endpoint,omitempty"`
}

type configFile struct {
	BufferCapacity  int    `toml:"buffer_capacity"`
	MaxFieldLength  int    `toml:"max_field_length"`
	Concurrency     int    `toml:"concurrency"`
	Bounds          string `toml:"bounds"`
	SortedPositions *bool  `toml:"sorted_positions"`

	FilesystemStorageBackend *filesystemStorageBackend `toml:"filesystem_storage_backend,omitempty"`
	S3StorageBackend         *s3StorageBackend         `toml:"s3_storage_backend,omitempty"`
	GCSStorageBackend        *gcsStorageBackend        `toml:"gcs_storage_backend,omitempty"`
}

func LoadConfigTOML(conf *config.Config, path string) error {
	var cfg configFile
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}
	if len(md.Undecoded()) > 0 {
		return fmt.Errorf("unknown keys in config: %v", md.Undecoded())
	}
	if cfg.BufferCapacity != 0 {
		conf.BufferCapacity = cfg.BufferCapacity
	}
	if cfg.MaxFieldLength != 0 {
		conf.MaxFieldLength = cfg.MaxFieldLength
	}
	if cfg.Concurrency != 0 {
		conf.Concurrency = cfg.Concurrency
	}
	if cfg.Bounds != "" {
		b, err := record.ParseBounds(cfg.Bounds)
		if err != nil {
			return fmt.Errorf("parsing bounds: %w", err)
		}
		conf.Bounds = b
	}
	if cfg.SortedPositions != nil {
		conf.SortedPositions = *cfg.SortedPositions
	}

	backends := 0
	if cfg.FilesystemStorageBackend != nil {
		backends++
		conf.StorageBackend = &storage.FilesystemBackend{
			Root: cfg.FilesystemStorageBackend.Root,
		}
	}
	if cfg.S3StorageBackend != nil {
		backends++
		b, err := storage.NewS3Backend(
			cfg.S3StorageBackend.Region,
			cfg.S3StorageBackend.Endpoint,
			storage.NewS3Client,
		)
		if err != nil {
			return fmt.Errorf("creating S3 backend: %w", err)
		}
		conf.StorageBackend = b
	}
	if cfg.GCSStorageBackend != nil {
		backends++
		conf.StorageBackend = &storage.GCSBackend{
			Endpoint: cfg.GCSStorageBackend.Endpoint,
		}
	}
	if backends > 1 {
		return fmt.Errorf("at most one storage backend may be configured, got %d", backends)
	}
	return nil
}

func DumpConfigTOML(conf *config.Config) (string, error) {
	sorted := conf.SortedPositions
	cfg := configFile{
		BufferCapacity:  conf.BufferCapacity,
		MaxFieldLength:  conf.MaxFieldLength,
		Concurrency:     conf.Concurrency,
		Bounds:          conf.Bounds.String(),
		SortedPositions: &sorted,
	}
	switch b := conf.StorageBackend.(type) {
	case *storage.FilesystemBackend:
		cfg.FilesystemStorageBackend = &filesystemStorageBackend{
			Root: b.Root,
		}
	case *storage.S3Backend:
		cfg.S3StorageBackend = &s3StorageBackend{
			Region:   b.Region,
			Endpoint: b.Endpoint,
		}
	case *storage.GCSBackend:
		cfg.GCSStorageBackend = &gcsStorageBackend{
			Endpoint: b.Endpoint,
		}
	}
	buf, err := toml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshaling config: %w", err)
	}
	return string(buf), nil
}
