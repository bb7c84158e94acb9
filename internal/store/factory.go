package store

import (
	"context"
	"fmt"

	"github.com/weiawesome/emergency-chat-relay/internal/config"
)

// Drivers accepted by New.
const (
	DriverMemory    = "memory"
	DriverMongo     = "mongo"
	DriverCassandra = "cassandra"
	DriverSQL       = "sql"
)

// New opens the backend named by cfg.Driver.
func New(ctx context.Context, cfg config.StoreConfig, stamper *Stamper) (MessageStore, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemoryStore(stamper), nil
	case DriverMongo:
		return NewMongoStore(ctx, cfg.Mongo, stamper)
	case DriverCassandra:
		return NewCassandraStore(cfg.Cassandra, stamper)
	case DriverSQL:
		return NewGormStore(&cfg.Database, stamper)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}
