// Command migrate manages the storefront schema.
//
//	migrate up          apply schema migrations
//	migrate seed        apply schema and seed migrations
//	migrate down        roll back every migration
//	migrate to N        move to version N
//	migrate reset       drop and recreate tables from the bun models, then seed (any driver)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"ms-storefront/internal/config"
	"ms-storefront/internal/database"
	"ms-storefront/internal/database/migrations"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
)

func main() {
	dir := flag.String("dir", "", "migrations directory (defaults to MIGRATIONS_DIR)")
	flag.Parse()

	log := logger.NewWithWriter(os.Stdout)
	_ = godotenv.Load()
	cfg := config.Load()
	if *dir != "" {
		cfg.Database.MigrationsDir = *dir
	}

	action := flag.Arg(0)
	if action == "" {
		fmt.Fprintln(os.Stderr, "usage: migrate [-dir path] up|seed|down|to N|reset")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}

	if action == "reset" {
		defer db.Close()
		if err := reset(ctx, db); err != nil {
			log.Fatal("MIGRATE", err.Error())
		}
		log.Info("MIGRATE", "Tables recreated and seeded")
		return
	}

	runner := migrations.NewRunner(db, migrations.Options{Dir: cfg.Database.MigrationsDir, Seed: action == "seed"}, log)
	defer func() { _ = runner.Close() }()

	switch action {
	case "up", "seed":
		err = runner.Up()
	case "down":
		err = runner.Down()
	case "to":
		var v uint64
		v, err = strconv.ParseUint(flag.Arg(1), 10, 32)
		if err == nil {
			err = runner.To(uint(v))
		}
	default:
		err = fmt.Errorf("unknown action %q", action)
	}
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}
	log.Info("MIGRATE", fmt.Sprintf("%s complete", action))
}

func reset(ctx context.Context, db *bun.DB) error {
	if err := database.DropSchema(ctx, db); err != nil {
		return fmt.Errorf("drop tables: %w", err)
	}
	if err := database.CreateSchema(ctx, db); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}

	now := time.Now().UTC()
	events := []models.Event{
		{ID: "7f1c2a4e-0d7b-4f5e-9a51-3c0d6f1b2a01", Name: "Wheel Throwing Basics", StartsAt: now.AddDate(0, 1, 0), TotalSeats: 12, AvailableSeats: 12, Version: 1, CreatedAt: now, UpdatedAt: now},
		{ID: "7f1c2a4e-0d7b-4f5e-9a51-3c0d6f1b2a02", Name: "Natural Dye Workshop", StartsAt: now.AddDate(0, 1, 14), TotalSeats: 20, AvailableSeats: 20, Version: 1, CreatedAt: now, UpdatedAt: now},
	}
	if _, err := db.NewInsert().Model(&events).Exec(ctx); err != nil {
		return fmt.Errorf("seed events: %w", err)
	}
	return nil
}
