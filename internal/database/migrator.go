package database

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"blogicum/internal/middleware"

	"gorm.io/gorm"
)

// SchemaMigration records one applied migration.
type SchemaMigration struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255;not null"`
	AppliedAt time.Time `gorm:"not null;autoCreateTime"`
}

// Migrator applies and reverts a fixed list of SQL migrations, recording each
// applied version in schema_migrations.
type Migrator struct {
	db         *gorm.DB
	migrations []Migration
}

// NewMigrator returns a Migrator for list, which must be sorted by version.
func NewMigrator(db *gorm.DB, list []Migration) *Migrator {
	return &Migrator{db: db, migrations: list}
}

// Applied returns the recorded versions in ascending order. A database that
// never ran a migration has none.
func (m *Migrator) Applied(ctx context.Context) ([]int, error) {
	db := m.db.WithContext(ctx)
	if !db.Migrator().HasTable(&SchemaMigration{}) {
		return []int{}, nil
	}
	var versions []int
	if err := db.Model(&SchemaMigration{}).Order("version").Pluck("version", &versions).Error; err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	return versions, nil
}

// Pending returns the migrations not applied yet.
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}
	var pending []Migration
	for _, mig := range m.migrations {
		if !slices.Contains(applied, mig.Version) {
			pending = append(pending, mig)
		}
	}
	return pending, nil
}

// Up applies every pending migration, each in its own transaction, and
// returns how many ran. Versions recorded in the database but unknown to the
// binary stop the run: the schema is newer than the code.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	if err := m.db.WithContext(ctx).AutoMigrate(&SchemaMigration{}); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}
	applied, err := m.Applied(ctx)
	if err != nil {
		return 0, err
	}
	if err := m.checkKnown(applied); err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range m.migrations {
		if slices.Contains(applied, mig.Version) {
			continue
		}
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(mig.UpScript).Error; err != nil {
				return err
			}
			return tx.Create(&SchemaMigration{Version: mig.Version, Name: mig.Name}).Error
		})
		if err != nil {
			return count, fmt.Errorf("apply migration %s: %w", mig.String(), err)
		}
		middleware.Logger.InfoContext(ctx, "Migration applied", slog.String("migration", mig.String()))
		count++
	}
	return count, nil
}

// Down reverts one applied migration and forgets it.
func (m *Migrator) Down(ctx context.Context, version int) error {
	i := slices.IndexFunc(m.migrations, func(mig Migration) bool { return mig.Version == version })
	if i < 0 {
		return fmt.Errorf("migration version %d not found", version)
	}
	mig := m.migrations[i]

	applied, err := m.Applied(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(applied, version) {
		return fmt.Errorf("migration %s has not been applied", mig.String())
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(mig.DownScript).Error; err != nil {
			return err
		}
		return tx.Delete(&SchemaMigration{}, "version = ?", version).Error
	})
	if err != nil {
		return fmt.Errorf("revert migration %s: %w", mig.String(), err)
	}
	middleware.Logger.InfoContext(ctx, "Migration reverted", slog.String("migration", mig.String()))
	return nil
}

// DownLatest reverts the highest applied version and returns it, or 0 when
// nothing is applied.
func (m *Migrator) DownLatest(ctx context.Context) (int, error) {
	applied, err := m.Applied(ctx)
	if err != nil || len(applied) == 0 {
		return 0, err
	}
	latest := applied[len(applied)-1]
	return latest, m.Down(ctx, latest)
}

func (m *Migrator) checkKnown(applied []int) error {
	var unknown []string
	for _, v := range applied {
		if !slices.ContainsFunc(m.migrations, func(mig Migration) bool { return mig.Version == v }) {
			unknown = append(unknown, fmt.Sprintf("%06d", v))
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("schema_migrations has versions this binary does not know: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// RunMigrations applies the pending embedded migrations.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	_, err := NewMigrator(db, migrations).Up(ctx)
	return err
}

// RollbackMigration reverts one embedded migration by version.
func RollbackMigration(ctx context.Context, db *gorm.DB, version int) error {
	return NewMigrator(db, migrations).Down(ctx, version)
}

// RollbackLatest reverts the most recently applied embedded migration.
func RollbackLatest(ctx context.Context, db *gorm.DB) (int, error) {
	return NewMigrator(db, migrations).DownLatest(ctx)
}
