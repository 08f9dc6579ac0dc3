package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"blogicum/internal/config"
	"blogicum/internal/middleware"

	"gorm.io/gorm"
)

// Schema modes accepted in DB_SCHEMA_MODE.
const (
	SchemaModeHybrid = "hybrid"
	SchemaModeSQL    = "sql"
	SchemaModeAuto   = "auto"
)

// schemaPlan says which mechanisms build the schema.
type schemaPlan struct {
	Mode string
	SQL  bool
	Auto bool
}

// SchemaStatus describes what ApplySchema would do and what is already applied.
type SchemaStatus struct {
	Mode               string
	Environment        string
	Driver             string
	WillRunSQL         bool
	WillRunAutoMigrate bool
	AppliedVersions    []int
	PendingMigrations  []Migration
}

// planSchema resolves DB_SCHEMA_MODE for the configured driver and environment.
// The SQL migrations target PostgreSQL, so SQLite is always built by AutoMigrate.
// Production never runs AutoMigrate.
func planSchema(cfg *config.Config) (schemaPlan, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.DBSchemaMode))
	if mode == "" {
		mode = SchemaModeHybrid
	}
	plan := schemaPlan{Mode: mode}

	switch {
	case mode != SchemaModeSQL && mode != SchemaModeAuto && mode != SchemaModeHybrid:
		return plan, fmt.Errorf("unsupported DB_SCHEMA_MODE %q", mode)
	case cfg.DBDriver == "sqlite":
		plan.Auto = true
	case mode == SchemaModeAuto && cfg.IsProduction():
		return plan, fmt.Errorf("refusing DB_SCHEMA_MODE=auto in %q", cfg.Env)
	case mode == SchemaModeAuto:
		plan.Auto = true
	case mode == SchemaModeSQL:
		plan.SQL = true
	default:
		plan.SQL = true
		plan.Auto = !cfg.IsProduction()
	}
	return plan, nil
}

// ApplySchema brings the database schema up to date according to DB_SCHEMA_MODE.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	plan, err := planSchema(cfg)
	if err != nil {
		return err
	}

	if plan.SQL {
		if err := RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("run sql migrations: %w", err)
		}
	}
	if plan.Auto {
		middleware.Logger.InfoContext(ctx, "Running GORM AutoMigrate",
			slog.String("mode", plan.Mode), slog.String("driver", cfg.DBDriver))
		if err := db.WithContext(ctx).AutoMigrate(PersistentModels()...); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
	}
	return nil
}

// GetSchemaStatus reports the schema plan and, when SQL migrations are in
// play, which of them are applied and pending.
func GetSchemaStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	plan, err := planSchema(cfg)
	if err != nil {
		return nil, err
	}

	status := &SchemaStatus{
		Mode:               plan.Mode,
		Environment:        cfg.Env,
		Driver:             cfg.DBDriver,
		WillRunSQL:         plan.SQL,
		WillRunAutoMigrate: plan.Auto,
	}
	if !plan.SQL {
		return status, nil
	}

	m := NewMigrator(db, migrations)
	if status.AppliedVersions, err = m.Applied(ctx); err != nil {
		return nil, err
	}
	if status.PendingMigrations, err = m.Pending(ctx); err != nil {
		return nil, err
	}
	return status, nil
}
