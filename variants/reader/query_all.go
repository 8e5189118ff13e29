package reader

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/chriskuehl/vcfrange/variants/logging"
	"github.com/chriskuehl/vcfrange/variants/record"
	"github.com/chriskuehl/vcfrange/variants/storage"
)

// Target is one object and the contig it holds.
type Target struct {
	Locator storage.Locator
	Contig  string
}

type Result struct {
	Target  Target
	Records []record.Record
	Stats   Stats
}

// QueryAll runs Query for every target, at most concurrency at a time. Each target gets its own
// stream and buffer. Results are in the order of targets. If any target fails, the remaining
// reads are cancelled and only the first error is returned.
func QueryAll(
	ctx context.Context,
	logger logging.Logger,
	backend storage.Backend,
	targets []Target,
	region record.Region,
	concurrency int,
	opts ...Option,
) ([]Result, error) {
	results := make([]Result, len(targets))
	g, gCtx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			qCtx := logging.WithQuery(gCtx, logging.QueryInfo{
				Object: target.Locator.String(),
				Contig: region.Contig,
				Start:  region.Start,
				End:    region.End,
			})
			recs, stats, err := Query(qCtx, logger, backend, target.Locator, target.Contig, region, opts...)
			if err != nil {
				return err
			}
			results[i] = Result{Target: target, Records: recs, Stats: stats}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("querying %d objects: %w", len(targets), err)
	}
	return results, nil
}
