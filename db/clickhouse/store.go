// Package clickhouse records plan runs in ClickHouse so past plans can be
// listed, compared and found again by their inputs.
package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlanRun is one recorded invocation of the planner.
type PlanRun struct {
	ID           uuid.UUID `ch:"id" json:"id"`
	Catalog      string    `ch:"catalog" json:"catalog"`
	Targets      string    `ch:"targets" json:"targets"`
	Per          string    `ch:"per" json:"per"`
	Policy       string    `ch:"policy" json:"policy"`
	Hash         string    `ch:"hash" json:"hash"`
	Iterations   uint32    `ch:"iterations" json:"iterations"`
	WarningCount uint32    `ch:"warning_count" json:"warning_count"`
	Converged    bool      `ch:"converged" json:"converged"`
	CreatedAt    time.Time `ch:"created_at" json:"created_at"`

	Buildings []RunBuilding `ch:"-" json:"buildings,omitempty"`
	Primaries []RunPrimary  `ch:"-" json:"primaries,omitempty"`
}

// RunBuilding is one (recipe, building) line of a run.
type RunBuilding struct {
	Recipe   string          `ch:"recipe" json:"recipe"`
	Building string          `ch:"building" json:"building"`
	Item     string          `ch:"item" json:"item"`
	Count    decimal.Decimal `ch:"count" json:"count"`
}

// RunPrimary is one raw resource a run needs.
type RunPrimary struct {
	Item     string          `ch:"item" json:"item"`
	Quantity decimal.Decimal `ch:"quantity" json:"quantity"`
}

// Config holds ClickHouse connection configuration
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Timeout  time.Duration
	Debug    bool
}

// DefaultConfig returns default development configuration
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     9000,
		Database: "factoryplan",
		Username: "default",
		Timeout:  10 * time.Second,
	}
}

// Store is the ClickHouse run history.
type Store struct {
	conn clickhouse.Conn
	cfg  *Config
}

// NewStore opens a connection. Nothing is sent until the first query.
func NewStore(cfg *Config) (*Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug:       cfg.Debug,
		DialTimeout: cfg.Timeout,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	return &Store{conn: conn, cfg: cfg}, nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// =============================================================================
// SCHEMA
// =============================================================================

var schema = []string{
	`CREATE TABLE IF NOT EXISTS plan_runs (
		id            UUID,
		catalog       LowCardinality(String),
		targets       String,
		per           LowCardinality(String),
		policy        LowCardinality(String),
		hash          FixedString(64),
		iterations    UInt32,
		warning_count UInt32,
		converged     UInt8,
		created_at    DateTime64(3)
	) ENGINE = MergeTree
	ORDER BY (catalog, created_at, id)`,
	`CREATE TABLE IF NOT EXISTS plan_run_buildings (
		run_id     UUID,
		recipe     LowCardinality(String),
		building   LowCardinality(String),
		item       LowCardinality(String),
		count      Decimal(38, 16),
		created_at DateTime64(3)
	) ENGINE = MergeTree
	ORDER BY (run_id, recipe, building)`,
	`CREATE TABLE IF NOT EXISTS plan_run_primaries (
		run_id     UUID,
		item       LowCardinality(String),
		quantity   Decimal(38, 16),
		created_at DateTime64(3)
	) ENGINE = MergeTree
	ORDER BY (run_id, item)`,
}

// EnsureSchema creates the history tables when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, ddl := range schema {
		if err := s.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create history schema: %w", err)
		}
	}
	return nil
}

// =============================================================================
// RUN OPERATIONS
// =============================================================================

// RecordRun inserts a run with its buildings and primaries. A nil ID is
// replaced by a fresh one.
func (s *Store) RecordRun(ctx context.Context, run *PlanRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO plan_runs (
			id, catalog, targets, per, policy, hash,
			iterations, warning_count, converged, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if err := s.conn.Exec(ctx, query,
		run.ID, run.Catalog, run.Targets, run.Per, run.Policy, run.Hash,
		run.Iterations, run.WarningCount, boolToUInt8(run.Converged), run.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert plan run: %w", err)
	}

	if len(run.Buildings) > 0 {
		batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO plan_run_buildings (run_id, recipe, building, item, count, created_at)`)
		if err != nil {
			return fmt.Errorf("failed to prepare batch: %w", err)
		}
		for _, b := range run.Buildings {
			if err := batch.Append(run.ID, b.Recipe, b.Building, b.Item, b.Count, run.CreatedAt); err != nil {
				return fmt.Errorf("failed to append to batch: %w", err)
			}
		}
		if err := batch.Send(); err != nil {
			return fmt.Errorf("failed to insert run buildings: %w", err)
		}
	}

	if len(run.Primaries) > 0 {
		batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO plan_run_primaries (run_id, item, quantity, created_at)`)
		if err != nil {
			return fmt.Errorf("failed to prepare batch: %w", err)
		}
		for _, p := range run.Primaries {
			if err := batch.Append(run.ID, p.Item, p.Quantity, run.CreatedAt); err != nil {
				return fmt.Errorf("failed to append to batch: %w", err)
			}
		}
		if err := batch.Send(); err != nil {
			return fmt.Errorf("failed to insert run primaries: %w", err)
		}
	}
	return nil
}

const runColumns = `id, catalog, targets, per, policy, hash, iterations, warning_count, converged, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*PlanRun, error) {
	var run PlanRun
	var converged uint8
	if err := row.Scan(
		&run.ID, &run.Catalog, &run.Targets, &run.Per, &run.Policy, &run.Hash,
		&run.Iterations, &run.WarningCount, &converged, &run.CreatedAt,
	); err != nil {
		return nil, err
	}
	run.Converged = converged == 1
	return &run, nil
}

// GetRun retrieves a run with its buildings and primaries. It returns nil
// when the run does not exist.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*PlanRun, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+runColumns+` FROM plan_runs WHERE id = ? LIMIT 1`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan run: %w", err)
	}

	if err := s.loadDetails(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first, without details.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*PlanRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.Query(ctx, `
		SELECT `+runColumns+`
		FROM plan_runs
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list plan runs: %w", err)
	}
	defer rows.Close()

	var runs []*PlanRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// FindRunByHash finds the latest run of a catalog with the same inputs.
func (s *Store) FindRunByHash(ctx context.Context, catalogName, hash string) (*PlanRun, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT `+runColumns+`
		FROM plan_runs
		WHERE catalog = ? AND hash = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, catalogName, hash)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find plan run by hash: %w", err)
	}
	return run, nil
}

func (s *Store) loadDetails(ctx context.Context, run *PlanRun) error {
	rows, err := s.conn.Query(ctx, `
		SELECT recipe, building, item, count
		FROM plan_run_buildings
		WHERE run_id = ?
		ORDER BY recipe, building
	`, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load run buildings: %w", err)
	}
	for rows.Next() {
		var b RunBuilding
		if err := rows.Scan(&b.Recipe, &b.Building, &b.Item, &b.Count); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan run building: %w", err)
		}
		run.Buildings = append(run.Buildings, b)
	}
	rows.Close()

	rows, err = s.conn.Query(ctx, `
		SELECT item, quantity
		FROM plan_run_primaries
		WHERE run_id = ?
		ORDER BY item
	`, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load run primaries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p RunPrimary
		if err := rows.Scan(&p.Item, &p.Quantity); err != nil {
			return fmt.Errorf("failed to scan run primary: %w", err)
		}
		run.Primaries = append(run.Primaries, p)
	}
	return rows.Err()
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
