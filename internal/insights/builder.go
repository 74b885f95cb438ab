package insights

import (
	"context"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hidroops/represas-insights/internal/apperr"
)

// ParseEntityIDs converts raw ids to integers, dropping anything that is
// not a base-10 integer and removing duplicates. Order is preserved.
func ParseEntityIDs(raw []string) []int64 {
	seen := make(map[int64]struct{}, len(raw))
	ids := make([]int64, 0, len(raw))
	for _, s := range raw {
		id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// DatasetBuilder reads names and telemetry concurrently and aggregates them.
type DatasetBuilder struct {
	repo Repository
	agg  Aggregator
}

func NewDatasetBuilder(repo Repository, agg Aggregator) *DatasetBuilder {
	return &DatasetBuilder{repo: repo, agg: agg}
}

// Build returns the dataset for ids over r. ids must be non-empty; callers
// validate before reaching the data source. Any repository failure is a
// DB_ERROR.
func (b *DatasetBuilder) Build(ctx context.Context, r DateRange, ids []int64, g Granularity) (*Dataset, error) {
	var (
		entities []Entity
		rows     []TelemetryRow
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		entities, err = b.repo.EntityNames(egCtx, ids)
		return err
	})
	eg.Go(func() error {
		var err error
		rows, err = b.repo.TelemetryRows(egCtx, RowsQuery{
			Start:       r.Start,
			End:         r.End,
			EntityIDs:   ids,
			Variables:   VariableCodes,
			Granularity: g,
		})
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, apperr.DB(err)
	}

	ds, err := b.agg.Summarize(rows, r)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "Internal Server Error", err)
	}
	if entities == nil {
		entities = []Entity{}
	}
	ds.Meta = Meta{Entities: entities, Granularity: g}
	return ds, nil
}
