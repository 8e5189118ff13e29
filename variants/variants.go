package variants

import (
	"context"
	"fmt"
	"strings"

	"github.com/chriskuehl/vcfrange/variants/config"
	"github.com/chriskuehl/vcfrange/variants/logging"
	"github.com/chriskuehl/vcfrange/variants/reader"
	"github.com/chriskuehl/vcfrange/variants/record"
	"github.com/chriskuehl/vcfrange/variants/storage"
)

// NewConfig returns a config with every default filled in except the storage backend.
func NewConfig() *config.Config {
	return &config.Config{
		BufferCapacity: reader.DefaultBufferCapacity,
		MaxFieldLength: reader.DefaultBufferCapacity,
		Concurrency:    4,
		Bounds:         record.Closed,
		Schema:         record.DefaultSchema,
	}
}

// ReaderOptions translates conf into options for reader.New.
func ReaderOptions(conf *config.Config) []reader.Option {
	return []reader.Option{
		reader.WithBufferCapacity(conf.BufferCapacity),
		reader.WithMaxFieldLength(conf.MaxFieldLength),
		reader.WithSchema(conf.Schema),
		reader.WithSortedPositions(conf.SortedPositions),
	}
}

// ParseTarget parses an object URL with an optional "#contig" suffix naming the contig the object
// holds. Without a suffix the object is assumed to hold defaultContig.
func ParseTarget(s string, defaultContig string) (reader.Target, error) {
	url, contig, found := strings.Cut(s, "#")
	if !found {
		contig = defaultContig
	} else if contig == "" {
		return reader.Target{}, fmt.Errorf("empty contig in %q", s)
	}
	loc, err := storage.ParseLocator(url)
	if err != nil {
		return reader.Target{}, err
	}
	return reader.Target{Locator: loc, Contig: contig}, nil
}

// Query streams every target with the configured backend and returns the matching records of
// each.
func Query(
	ctx context.Context,
	logger logging.Logger,
	conf *config.Config,
	targets []reader.Target,
	region record.Region,
) ([]reader.Result, error) {
	if errs := conf.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	logger.Debug(ctx, "querying objects", "objects", len(targets), "region", region.String())
	return reader.QueryAll(ctx, logger, conf.StorageBackend, targets, region, conf.Concurrency, ReaderOptions(conf)...)
}
