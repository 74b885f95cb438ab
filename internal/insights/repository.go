package insights

import (
	"context"
	"time"
)

// Repository defines the telemetry data access contract.
type Repository interface {
	// EntityNames returns id and display name for each known id. Unknown ids
	// are omitted.
	EntityNames(ctx context.Context, ids []int64) ([]Entity, error)

	// TelemetryRows returns observations within the query, averaged per
	// (bucket, entity, variable) at the requested granularity.
	TelemetryRows(ctx context.Context, q RowsQuery) ([]TelemetryRow, error)
}

// Directory lists every known reservoir.
type Directory interface {
	ListEntities(ctx context.Context) ([]Entity, error)
}

// RowsQuery selects telemetry for aggregation.
type RowsQuery struct {
	Start       time.Time
	End         time.Time
	EntityIDs   []int64
	Variables   []string
	Granularity Granularity
}
