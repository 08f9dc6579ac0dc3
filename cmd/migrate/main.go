// Command migrate inspects and changes the database schema.
//
//	migrate status          show the schema plan and pending SQL migrations
//	migrate up              apply pending SQL migrations
//	migrate auto            run GORM AutoMigrate (refused in production)
//	migrate down [version]  revert one migration, the latest by default
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"blogicum/internal/config"
	"blogicum/internal/database"

	"gorm.io/gorm"
)

type command func(ctx context.Context, db *gorm.DB, cfg *config.Config, args []string) error

var commands = map[string]command{
	"status": status,
	"up":     up,
	"auto":   auto,
	"down":   down,
}

func main() {
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: migrate <status|up|auto|down> [version]")
	}
	flag.Parse()

	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(cmd, flag.Args()[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func run(cmd command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := database.Connect(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()

	return cmd(context.Background(), db, cfg, args)
}

func status(ctx context.Context, db *gorm.DB, cfg *config.Config, _ []string) error {
	s, err := database.GetSchemaStatus(ctx, db, cfg)
	if err != nil {
		return err
	}
	fmt.Printf("mode=%s env=%s driver=%s sql=%t auto=%t\n", s.Mode, s.Environment, s.Driver, s.WillRunSQL, s.WillRunAutoMigrate)
	fmt.Printf("applied: %v\n", s.AppliedVersions)
	for _, m := range s.PendingMigrations {
		fmt.Printf("pending: %s\n", m.String())
	}
	return nil
}

func up(ctx context.Context, db *gorm.DB, _ *config.Config, _ []string) error {
	n, err := database.NewMigrator(db, database.GetMigrations()).Up(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("applied %d migration(s)\n", n)
	return nil
}

func auto(ctx context.Context, db *gorm.DB, cfg *config.Config, _ []string) error {
	cfg.DBSchemaMode = database.SchemaModeAuto
	if err := database.ApplySchema(ctx, db, cfg); err != nil {
		return err
	}
	fmt.Println("automigrate done")
	return nil
}

func down(ctx context.Context, db *gorm.DB, _ *config.Config, args []string) error {
	m := database.NewMigrator(db, database.GetMigrations())
	if len(args) == 0 {
		version, err := m.DownLatest(ctx)
		if err != nil {
			return err
		}
		if version == 0 {
			fmt.Println("nothing to revert")
		} else {
			fmt.Printf("reverted %06d\n", version)
		}
		return nil
	}

	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version %q", args[0])
	}
	if err := m.Down(ctx, version); err != nil {
		return err
	}
	fmt.Printf("reverted %06d\n", version)
	return nil
}
