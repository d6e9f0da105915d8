package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hmcts/wa-task-management-api-sub002/internal/infra/config"
)

const defaultSchema = "cft_task_db"

// requiredTables must exist before the service takes traffic; migrations create them.
var requiredTables = []string{"tasks", "task_roles"}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPostgresPool opens the task database pool and checks the task schema is migrated.
func NewPostgresPool(ctx context.Context, cfg config.PostgresSettings, log *zap.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := buildPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	schema := schemaName(cfg)
	if err := VerifySchema(ctx, pool, schema); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info("task database ready",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
		zap.String("schema", schema),
		zap.Int32("max_conns", poolConfig.MaxConns),
		zap.Duration("lock_wait_limit", cfg.LockWaitLimit),
	)
	return pool, nil
}

// VerifySchema fails when any task table is missing from schema.
func VerifySchema(ctx context.Context, db rowQuerier, schema string) error {
	var missing []string
	for _, table := range requiredTables {
		var present bool
		if err := db.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", schema+"."+table).Scan(&present); err != nil {
			return fmt.Errorf("check table %s.%s: %w", schema, table, err)
		}
		if !present {
			missing = append(missing, table)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("schema %s is not migrated, missing tables %v", schema, missing)
	}
	return nil
}

func buildPoolConfig(cfg config.PostgresSettings) (*pgxpool.Config, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx pool config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	params := poolConfig.ConnConfig.RuntimeParams
	if params == nil {
		params = make(map[string]string)
		poolConfig.ConnConfig.RuntimeParams = params
	}
	params["search_path"] = schemaName(cfg) + ",public"
	params["application_name"] = "wa-task-management-api"
	return poolConfig, nil
}

func schemaName(cfg config.PostgresSettings) string {
	if cfg.Schema == "" {
		return defaultSchema
	}
	return cfg.Schema
}
