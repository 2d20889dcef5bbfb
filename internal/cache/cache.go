package cache

import (
	"context"

	"trade_core/internal/models"
)

// SnapshotCache holds serialized strategy-instance snapshots keyed by
// strategy id. The cache is a collaborator: losing it loses warm state,
// never correctness.
type SnapshotCache interface {
	Put(ctx context.Context, id string, snap models.InstanceSnapshot) error
	Get(ctx context.Context, id string) (models.InstanceSnapshot, bool, error)
	Evict(ctx context.Context, id string) error
}
