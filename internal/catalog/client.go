// Package catalog records every pipeline run in PostgreSQL.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one row of the catalogue.
type Run struct {
	ID            uuid.UUID
	Request       string
	RequestName   string
	OutputPath    string
	Frames        int
	MissingFrames int
	OriginLon     float64
	OriginLat     float64
	Velocity      float64
	Status        string
	Error         string
	StartedAt     time.Time
	FinishedAt    time.Time
}

type Client struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	config map[string]string
}

func NewClient(config map[string]string, logger *zap.Logger) (*Client, error) {
	dsn := buildConnectionString(config)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection config: %w", err)
	}

	poolConfig.MaxConns = 4
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &Client{
		pool:   pool,
		logger: logger,
		config: config,
	}, nil
}

func (c *Client) Close() {
	if c.pool != nil {
		c.pool.Close()
	}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

const createRunsTable = `
	CREATE TABLE IF NOT EXISTS datacube_runs (
		id             uuid PRIMARY KEY,
		request        text NOT NULL,
		request_name   text NOT NULL,
		output_path    text NOT NULL DEFAULT '',
		frames         integer NOT NULL DEFAULT 0,
		missing_frames integer NOT NULL DEFAULT 0,
		origin_lon     double precision NOT NULL,
		origin_lat     double precision NOT NULL,
		velocity       double precision NOT NULL,
		status         text NOT NULL,
		error          text NOT NULL DEFAULT '',
		started_at     timestamptz NOT NULL,
		finished_at    timestamptz NOT NULL
	)
`

// EnsureSchema creates the runs table if it does not exist.
func (c *Client) EnsureSchema(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, createRunsTable); err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}
	return nil
}

// RecordRun inserts run, assigning an ID when it has none. Recording the
// same ID twice updates the row.
func (c *Client) RecordRun(ctx context.Context, run *Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	query := `
		INSERT INTO datacube_runs (
			id, request, request_name, output_path, frames, missing_frames,
			origin_lon, origin_lat, velocity, status, error, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			output_path = EXCLUDED.output_path,
			frames = EXCLUDED.frames,
			missing_frames = EXCLUDED.missing_frames,
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			finished_at = EXCLUDED.finished_at
	`
	_, err := c.pool.Exec(ctx, query,
		run.ID, run.Request, run.RequestName, run.OutputPath, run.Frames, run.MissingFrames,
		run.OriginLon, run.OriginLat, run.Velocity, run.Status, run.Error, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	c.logger.Debug("Run recorded", zap.String("run_id", run.ID.String()), zap.String("status", run.Status))
	return nil
}

// ListRuns returns the most recent runs first.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT id, request, request_name, output_path, frames, missing_frames,
			origin_lon, origin_lat, velocity, status, error, started_at, finished_at
		FROM datacube_runs
		ORDER BY started_at DESC
		LIMIT $1
	`
	rows, err := c.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Run, error) {
		var r Run
		err := row.Scan(
			&r.ID, &r.Request, &r.RequestName, &r.OutputPath, &r.Frames, &r.MissingFrames,
			&r.OriginLon, &r.OriginLat, &r.Velocity, &r.Status, &r.Error, &r.StartedAt, &r.FinishedAt,
		)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan runs: %w", err)
	}
	return runs, nil
}

func buildConnectionString(config map[string]string) string {
	host := config["host"]
	port := config["port"]
	database := config["database"]
	username := config["username"]
	password := config["password"]
	sslmode := config["sslmode"]
	if sslmode == "" {
		sslmode = "prefer"
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		username, password, host, port, database, sslmode)

	if connectTimeout := config["connect_timeout"]; connectTimeout != "" {
		if duration, err := time.ParseDuration(connectTimeout); err == nil {
			dsn += fmt.Sprintf("&connect_timeout=%d", int(duration.Seconds()))
		}
	}

	// statement_timeout is a server setting given in milliseconds
	if statementTimeout := config["statement_timeout"]; statementTimeout != "" {
		if duration, err := time.ParseDuration(statementTimeout); err == nil {
			dsn += fmt.Sprintf("&statement_timeout=%d", duration.Milliseconds())
		}
	}

	return dsn
}
