package traffic

import (
	"context"
	"time"
)

type Store interface {
	// InsertBatch persists a flushed batch of metrics in one write.
	InsertBatch(ctx context.Context, metrics []*Metric) error
	List(ctx context.Context, opts ListOpts) ([]*Metric, error)
	Purge(ctx context.Context, before time.Time) (int64, error)
}

type ListOpts struct {
	Source Source
	Since  time.Time
	Until  time.Time
	Limit  int
	Offset int
}
