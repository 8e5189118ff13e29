package config

import (
	"github.com/chriskuehl/vcfrange/variants/record"
	"github.com/chriskuehl/vcfrange/variants/storage"
)

type Config struct {
	StorageBackend storage.Backend
	// BufferCapacity is the size of the working buffer each reader allocates. Every refill moves
	// the unread tail of the buffer to its start, so larger buffers trade memory for fewer
	// copies and fewer round trips to the stream.
	BufferCapacity int
	// MaxFieldLength is the largest length prefix accepted for a variable-length field. Larger
	// prefixes are treated as stream corruption.
	MaxFieldLength int
	// Concurrency bounds how many objects are streamed at once.
	Concurrency int
	// Bounds is the default comparison for region ends.
	Bounds record.Bounds
	// SortedPositions allows a reader to stop once it passes the end of the region. Only set
	// this for objects written in position order.
	SortedPositions bool

	// Runtime options, cannot be set via config.
	Schema  record.Schema
	Version string
}

func (conf *Config) Validate() []string {
	var errs []string
	if conf.StorageBackend == nil {
		errs = append(errs, "StorageBackend must not be nil")
	} else {
		errs = append(errs, conf.StorageBackend.Validate()...)
	}
	if conf.Schema == nil {
		errs = append(errs, "Schema must not be nil")
	}
	if conf.BufferCapacity <= 0 {
		errs = append(errs, "BufferCapacity must be greater than 0")
	} else if conf.Schema != nil && conf.BufferCapacity < conf.Schema.MinSize() {
		errs = append(errs, "BufferCapacity must hold at least one record header")
	}
	if conf.MaxFieldLength <= 0 {
		errs = append(errs, "MaxFieldLength must be greater than 0")
	}
	if conf.Concurrency <= 0 {
		errs = append(errs, "Concurrency must be greater than 0")
	}
	if conf.Bounds != record.Closed && conf.Bounds != record.HalfOpen {
		errs = append(errs, "Bounds must be closed or half-open")
	}
	if conf.Version == "" {
		errs = append(errs, "Version must not be empty")
	}
	return errs
}
