package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/obsidianstack/sentinel/pkg/types"
)

// ErrInvalidIncident is returned when an incident without a check ID is written.
var ErrInvalidIncident = errors.New("store: incident has no check id")

// Store is the incident store contract shared by the scheduler and any other
// caller such as the admin API.
type Store interface {
	Get(ctx context.Context, checkID string) (types.Incident, bool, error)
	Create(ctx context.Context, inc types.Incident) (bool, error)
	Update(ctx context.Context, inc, prev types.Incident) (bool, error)
	Delete(ctx context.Context, inc, prev types.Incident) (bool, error)
	List(ctx context.Context) ([]types.Incident, error)
}

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Backend       string
	DSN           string
	RedisAddr     string
	RedisPassword string
	KeyPrefix     string
}

// Open builds the Store described by opts. The returned close func releases
// backend connections and is never nil.
func Open(ctx context.Context, opts Options) (Store, func(), error) {
	switch opts.Backend {
	case BackendMemory, "":
		return NewMemory(), func() {}, nil
	case BackendPostgres:
		pg, err := ConnectPostgres(ctx, opts.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		return pg, pg.Close, nil
	case BackendRedis:
		rs, err := ConnectRedis(ctx, opts.RedisAddr, opts.RedisPassword, opts.KeyPrefix)
		if err != nil {
			return nil, nil, err
		}
		return rs, func() { rs.Close() }, nil //nolint:errcheck
	default:
		return nil, nil, fmt.Errorf("store: unknown backend %q", opts.Backend)
	}
}

func checkWritable(inc types.Incident) error {
	if inc.CheckID == "" {
		return ErrInvalidIncident
	}
	return nil
}
