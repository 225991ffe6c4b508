package lifecycle

import (
	"fmt"

	"cshealth/internal/clock"
	"cshealth/internal/config"
)

// Open builds lifecycle store for configured backend.
// Params: store settings and clock.
// Returns: store or backend setup error.
func Open(cfg config.StoreConfig, clk clock.Clock) (Store, error) {
	switch cfg.Backend {
	case config.StoreBackendMemory, "":
		return NewMemoryStore(clk), nil
	case config.StoreBackendSQLite:
		return NewSQLiteStore(cfg.SQLitePath, clk)
	case config.StoreBackendNATS:
		return NewNATSStore(NATSSettings{
			URL:                cfg.NATSURL,
			Bucket:             cfg.Bucket,
			AllowCreateBuckets: cfg.AllowCreateBuckets,
		}, clk)
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
}
