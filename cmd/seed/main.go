// Command seed loads reference data and generated demo content.
package main

import (
	"context"
	"flag"
	"log"

	"blogicum/internal/config"
	"blogicum/internal/database"
	"blogicum/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 10, "Number of users to create")
	numPosts := flag.Int("posts", 60, "Number of posts to create")
	numComments := flag.Int("comments", 150, "Number of comments to create")
	maxDays := flag.Int("days", 90, "Spread publication dates over this many days")
	clean := flag.Bool("clean", false, "Remove existing users, posts and comments first")
	dryRun := flag.Bool("dry-run", false, "Generate data without writing it")
	referenceOnly := flag.Bool("reference-only", false, "Only load categories and locations")
	randSeed := flag.Int64("seed", 0, "Random seed; 0 picks one")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() && !*dryRun && !*referenceOnly {
		log.Fatal("Refusing to generate demo content in production")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close(db) }()

	ctx := context.Background()
	if err := database.ApplySchema(ctx, db, cfg); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	if *referenceOnly {
		ref, err := seed.LoadReference()
		if err != nil {
			log.Fatalf("Reference data: %v", err)
		}
		categories, locations, err := seed.SeedReference(db.WithContext(ctx), ref)
		if err != nil {
			log.Fatalf("Reference seeding failed: %v", err)
		}
		log.Printf("Seeded %d categories and %d locations", len(categories), len(locations))
		return
	}

	s := seed.NewSeeder(db, seed.Options{
		Users:    *numUsers,
		Posts:    *numPosts,
		Comments: *numComments,
		DryRun:   *dryRun,
		MaxDays:  *maxDays,
		RandSeed: *randSeed,
	})
	if *clean {
		if err := s.ClearContent(ctx); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	summary, err := s.Run(ctx)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Printf("Seeded %d categories, %d locations, %d users, %d posts, %d comments (password %q)",
		summary.Categories, summary.Locations, summary.Users, summary.Posts, summary.Comments, seed.DemoPassword)
}
