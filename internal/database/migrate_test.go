package database

import (
	"context"
	"testing"
	"testing/fstest"

	"blogicum/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func sqliteMigrations(t *testing.T) []Migration {
	t.Helper()
	fsys := fstest.MapFS{
		"m/000001_widgets.up.sql":   {Data: []byte("CREATE TABLE widgets (id INTEGER PRIMARY KEY);")},
		"m/000001_widgets.down.sql": {Data: []byte("DROP TABLE widgets;")},
		"m/000002_gadgets.up.sql":   {Data: []byte("CREATE TABLE gadgets (id INTEGER PRIMARY KEY);")},
		"m/000002_gadgets.down.sql": {Data: []byte("DROP TABLE gadgets;")},
		"m/README.md":               {Data: []byte("ignored")},
	}
	list, err := LoadMigrations(fsys, "m")
	require.NoError(t, err)
	return list
}

func openMemory(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func TestEmbeddedMigrations(t *testing.T) {
	list := GetMigrations()
	require.NotEmpty(t, list)
	assert.Equal(t, 1, list[0].Version)
	assert.Equal(t, "000001_init", list[0].String())
	assert.Contains(t, list[0].UpScript, "ON DELETE SET NULL")
	assert.Contains(t, list[0].UpScript, "ON DELETE CASCADE")
	assert.NotNil(t, GetMigrationByVersion(1))
	assert.Nil(t, GetMigrationByVersion(999))
}

func TestLoadMigrations_MissingDown(t *testing.T) {
	fsys := fstest.MapFS{"m/000001_a.up.sql": {Data: []byte("SELECT 1;")}}
	_, err := LoadMigrations(fsys, "m")
	assert.Error(t, err)
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"m/000001_a.up.sql":   {Data: []byte("SELECT 1;")},
		"m/000001_a.down.sql": {Data: []byte("SELECT 1;")},
		"m/000001_b.up.sql":   {Data: []byte("SELECT 1;")},
		"m/000001_b.down.sql": {Data: []byte("SELECT 1;")},
	}
	_, err := LoadMigrations(fsys, "m")
	assert.Error(t, err)
}

func TestRunMigrations_AppliesOnceAndRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	list := sqliteMigrations(t)

	m := NewMigrator(db, list)

	n, err := m.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = m.Up(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, db.Migrator().HasTable("widgets"))
	assert.True(t, db.Migrator().HasTable("gadgets"))

	applied, err := m.Applied(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, applied)

	version, err := m.DownLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
	assert.False(t, db.Migrator().HasTable("gadgets"))
	assert.Error(t, m.Down(ctx, 2))
	assert.Error(t, m.Down(ctx, 42))

	pending, err := m.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "000002_gadgets", pending[0].String())
}

func TestRunMigrations_UnknownAppliedVersion(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	list := sqliteMigrations(t)
	_, err := NewMigrator(db, list).Up(ctx)
	require.NoError(t, err)

	_, err = NewMigrator(db, list[:1]).Up(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000002")
}

func TestMigrator_AppliedWithoutTable(t *testing.T) {
	applied, err := NewMigrator(openMemory(t), nil).Applied(context.Background())
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestPlanSchema(t *testing.T) {
	tests := []struct {
		name            string
		cfg             config.Config
		runSQL, runAuto bool
		wantErr         bool
	}{
		{"hybrid dev postgres", config.Config{Env: "development", DBDriver: "postgres", DBSchemaMode: "hybrid"}, true, true, false},
		{"hybrid prod postgres", config.Config{Env: "production", DBDriver: "postgres", DBSchemaMode: "hybrid"}, true, false, false},
		{"empty mode is hybrid", config.Config{Env: "development", DBDriver: "postgres"}, true, true, false},
		{"sql only", config.Config{Env: "development", DBDriver: "postgres", DBSchemaMode: "sql"}, true, false, false},
		{"auto dev", config.Config{Env: "development", DBDriver: "postgres", DBSchemaMode: "auto"}, false, true, false},
		{"auto prod refused", config.Config{Env: "production", DBDriver: "postgres", DBSchemaMode: "auto"}, false, false, true},
		{"sqlite always auto", config.Config{Env: "test", DBDriver: "sqlite", DBSchemaMode: "sql"}, false, true, false},
		{"unknown mode", config.Config{Env: "test", DBDriver: "sqlite", DBSchemaMode: "magic"}, false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := planSchema(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.runSQL, plan.SQL)
			assert.Equal(t, tt.runAuto, plan.Auto)
		})
	}
}

func TestGetSchemaStatus_SQLite(t *testing.T) {
	cfg := &config.Config{Env: "test", DBDriver: "sqlite", DBSchemaMode: "hybrid"}
	status, err := GetSchemaStatus(context.Background(), openMemory(t), cfg)
	require.NoError(t, err)
	assert.False(t, status.WillRunSQL)
	assert.True(t, status.WillRunAutoMigrate)
	assert.Equal(t, "sqlite", status.Driver)
	assert.Empty(t, status.PendingMigrations)
}

func TestPersistentModels_ParentsFirst(t *testing.T) {
	models := PersistentModels()
	require.Len(t, models, 5)
	names := make([]string, 0, len(models))
	for _, m := range models {
		stmt := &gorm.Statement{DB: openMemory(t)}
		require.NoError(t, stmt.Parse(m))
		names = append(names, stmt.Schema.Table)
	}
	assert.Equal(t, []string{"users", "categories", "locations", "posts", "comments"}, names)
}
