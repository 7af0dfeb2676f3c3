package hierarchy

import (
	"context"
	"errors"
)

// ErrTombstoned is returned when an auto insert targets a cluster whose node
// a human deleted; the insert is dropped.
var ErrTombstoned = errors.New("cluster node was deleted by an editor")

// Store persists hierarchy nodes. Human edits check the expected version and
// fail with domain.ErrConcurrencyConflict when it no longer matches.
type Store interface {
	Flat(ctx context.Context, generationID int64) ([]Node, error)
	Get(ctx context.Context, id int64) (Node, error)
	FindByCluster(ctx context.Context, generationID int64, clusterID int) (Node, bool, error)
	IsTombstoned(ctx context.Context, generationID int64, clusterID int) (bool, error)
	Count(ctx context.Context, generationID int64) (roots int64, total int64, err error)

	// InsertAuto writes a label-stage node, keyed by (generation, cluster).
	// An existing unedited node is overwritten, an edited one is left alone.
	InsertAuto(ctx context.Context, node Node) (Node, error)

	Update(ctx context.Context, action UpdateAction, actor string) (Node, error)
	Add(ctx context.Context, generationID int64, action AddAction, actor string) (Node, error)
	Move(ctx context.Context, action MoveAction, actor string) (Node, error)
	Delete(ctx context.Context, action DeleteAction, actor string) (Result, error)
	Merge(ctx context.Context, action MergeAction, actor string) (Result, error)
}
