package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/obsidianstack/sentinel/pkg/types"
)

// Postgres stores incidents in a single table. The version column is the
// compare-and-swap token; the incident itself is kept as JSONB.
type Postgres struct {
	pool *pgxpool.Pool
}

// ConnectPostgres opens a connection pool and verifies it with a ping.
func ConnectPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store: postgres dsn is empty")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: postgres ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Migrate creates the incidents table. It is idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS incidents (
			check_id   TEXT PRIMARY KEY,
			version    BIGINT NOT NULL,
			body       JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	if err != nil {
		return fmt.Errorf("store: postgres migrate: %w", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, checkID string) (types.Incident, bool, error) {
	var (
		version uint64
		body    []byte
	)
	err := p.pool.QueryRow(ctx,
		`SELECT version, body FROM incidents WHERE check_id = $1`, checkID,
	).Scan(&version, &body)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Incident{}, false, nil
	}
	if err != nil {
		return types.Incident{}, false, fmt.Errorf("store: postgres get %q: %w", checkID, err)
	}
	inc, err := decodeIncident(body, version)
	if err != nil {
		return types.Incident{}, false, err
	}
	return inc, true, nil
}

func (p *Postgres) Create(ctx context.Context, inc types.Incident) (bool, error) {
	if err := checkWritable(inc); err != nil {
		return false, err
	}
	inc.Version = 1
	body, err := json.Marshal(inc)
	if err != nil {
		return false, fmt.Errorf("store: encode incident: %w", err)
	}
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO incidents (check_id, version, body, updated_at)
		VALUES ($1, 1, $2, now())
		ON CONFLICT (check_id) DO NOTHING`,
		inc.CheckID, body,
	)
	if err != nil {
		return false, fmt.Errorf("store: postgres create %q: %w", inc.CheckID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) Update(ctx context.Context, inc, prev types.Incident) (bool, error) {
	if err := checkWritable(inc); err != nil {
		return false, err
	}
	inc.Version = prev.Version + 1
	body, err := json.Marshal(inc)
	if err != nil {
		return false, fmt.Errorf("store: encode incident: %w", err)
	}
	tag, err := p.pool.Exec(ctx, `
		UPDATE incidents
		SET version = $3, body = $4, updated_at = now()
		WHERE check_id = $1 AND version = $2`,
		inc.CheckID, prev.Version, inc.Version, body,
	)
	if err != nil {
		return false, fmt.Errorf("store: postgres update %q: %w", inc.CheckID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) Delete(ctx context.Context, inc, prev types.Incident) (bool, error) {
	if err := checkWritable(inc); err != nil {
		return false, err
	}
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM incidents WHERE check_id = $1 AND version = $2`,
		inc.CheckID, prev.Version,
	)
	if err != nil {
		return false, fmt.Errorf("store: postgres delete %q: %w", inc.CheckID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) List(ctx context.Context) ([]types.Incident, error) {
	rows, err := p.pool.Query(ctx, `SELECT version, body FROM incidents ORDER BY check_id`)
	if err != nil {
		return nil, fmt.Errorf("store: postgres list: %w", err)
	}
	defer rows.Close()

	var out []types.Incident
	for rows.Next() {
		var (
			version uint64
			body    []byte
		)
		if err := rows.Scan(&version, &body); err != nil {
			return nil, fmt.Errorf("store: postgres scan: %w", err)
		}
		inc, err := decodeIncident(body, version)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// decodeIncident unmarshals a stored body and applies the authoritative version.
func decodeIncident(body []byte, version uint64) (types.Incident, error) {
	var inc types.Incident
	if err := json.Unmarshal(body, &inc); err != nil {
		return types.Incident{}, fmt.Errorf("store: decode incident: %w", err)
	}
	inc.Version = version
	return inc, nil
}
