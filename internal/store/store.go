// Package store persists monthly traffic snapshots and a latest-per-domain
// projection, and decides cache hit versus miss against the upstream's
// monthly release schedule. Rows are self-contained; simple upserts, no
// multi-statement transactions.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/traffic-cli/internal/config"
	"github.com/sells-group/traffic-cli/internal/model"
)

// Store is the persistence interface for the extraction engine.
type Store interface {
	// UpsertSnapshot writes one record. Records carrying metrics upsert
	// both the (domain, monthYear) snapshot and the latest projection;
	// metricless failure records only update the projection's last_error,
	// so a failed attempt never clobbers good data.
	UpsertSnapshot(ctx context.Context, rec model.TrafficRecord) error

	// GetBatch returns the latest projection for each requested domain,
	// keyed by cache key. Both the bare and www-prefixed stored forms are
	// checked; at most one row per request, bare preferred.
	GetBatch(ctx context.Context, domains []string) (map[string]model.TrafficRecord, error)

	// GetLatest returns the latest projection for one domain (bare or www
	// stored form), or nil when the domain was never attempted.
	GetLatest(ctx context.Context, domain string) (*model.TrafficRecord, error)

	// PruneSnapshots deletes snapshots older than the retention window.
	// The latest projection is never pruned.
	PruneSnapshots(ctx context.Context, retentionMonths int) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// New builds the configured backend.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	case "sqlite", "":
		return NewSQLite(cfg.SQLitePath)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
