package registry

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend durably persists instance bookkeeping, the same
// pgxpool-backed upsert/query shape as the teacher's store.PostgresStore.
// It is a write-behind companion to Registry, not a drop-in replacement
// for it: callers write through both so Discover stays fast and a
// restart can rehydrate from Postgres via LoadAll.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend opens a pool against connString and verifies
// connectivity.
func NewPostgresBackend(ctx context.Context, connString string) (*PostgresBackend, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}
	return &PostgresBackend{pool: pool}, nil
}

// Close releases the connection pool.
func (b *PostgresBackend) Close() {
	b.pool.Close()
}

// Upsert writes or updates an instance row.
func (b *PostgresBackend) Upsert(ctx context.Context, inst Instance) error {
	metadata, err := json.Marshal(inst.Metadata)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO service_instances (id, service_name, host, port, weight, status, active_connections, metadata, last_heartbeat)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			host = EXCLUDED.host,
			port = EXCLUDED.port,
			weight = EXCLUDED.weight,
			status = EXCLUDED.status,
			active_connections = EXCLUDED.active_connections,
			metadata = EXCLUDED.metadata,
			last_heartbeat = EXCLUDED.last_heartbeat
	`
	_, err = b.pool.Exec(ctx, query, inst.ID, inst.ServiceName, inst.Host, inst.Port,
		inst.Weight, int(inst.Status), inst.ActiveConnections, metadata, inst.LastHeartbeat)
	return err
}

// Delete removes an instance row.
func (b *PostgresBackend) Delete(ctx context.Context, id string) error {
	_, err := b.pool.Exec(ctx, `DELETE FROM service_instances WHERE id = $1`, id)
	return err
}

// LoadAll reads back every persisted instance, used to rehydrate a
// Registry after a restart.
func (b *PostgresBackend) LoadAll(ctx context.Context) ([]Instance, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT id, service_name, host, port, weight, status, active_connections, metadata, last_heartbeat
		FROM service_instances
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Instance
	for rows.Next() {
		var inst Instance
		var status int
		var metadata []byte
		if err := rows.Scan(&inst.ID, &inst.ServiceName, &inst.Host, &inst.Port,
			&inst.Weight, &status, &inst.ActiveConnections, &metadata, &inst.LastHeartbeat); err != nil {
			return nil, err
		}
		inst.Status = Status(status)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &inst.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// Get reads a single instance row, returning (zero, false) on a miss.
func (b *PostgresBackend) Get(ctx context.Context, id string) (Instance, bool, error) {
	var inst Instance
	var status int
	var metadata []byte
	err := b.pool.QueryRow(ctx, `
		SELECT id, service_name, host, port, weight, status, active_connections, metadata, last_heartbeat
		FROM service_instances WHERE id = $1
	`, id).Scan(&inst.ID, &inst.ServiceName, &inst.Host, &inst.Port,
		&inst.Weight, &status, &inst.ActiveConnections, &metadata, &inst.LastHeartbeat)
	if errors.Is(err, pgx.ErrNoRows) {
		return Instance{}, false, nil
	}
	if err != nil {
		return Instance{}, false, err
	}
	inst.Status = Status(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &inst.Metadata); err != nil {
			return Instance{}, false, err
		}
	}
	return inst, true, nil
}
