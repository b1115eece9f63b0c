package main

import (
	"flag"
	"log"

	"pmgate/internal/config"
	"pmgate/internal/database"
)

func main() {
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to config file")
		path       = flag.String("path", "migrations", "path to migration files")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db, *path); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	log.Println("migrations applied")
}
