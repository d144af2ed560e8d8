package main

// Apply database migrations:
//   go run ./cmd/migrate

import (
	"context"
	"log"

	"advisor-backend/internal/shared/config"
	"advisor-backend/internal/shared/storage/db"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultMigrateOptions()))
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer sqlDB.Close()

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		log.Fatalf("run migrations: %v", err)
	}
	log.Print("migrations applied")
}
