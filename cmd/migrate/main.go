// File: cmd/migrate/main.go
//
// Applies deploy/postgres/init.sql. The schema is idempotent
// (CREATE TABLE IF NOT EXISTS), so re-running is safe.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"catalog-enrichment/internal/config"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	dsn := flag.String("dsn", "", "postgres DSN (overrides config)")
	schemaPath := flag.String("schema", "deploy/postgres/init.sql", "path to schema file")
	flag.Parse()

	url := *dsn
	if url == "" {
		// dev=true: migrations only need the database URL, not API secrets
		cfg, err := config.LoadConfig(*cfgPath, true)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		url = cfg.Database.URL
	}

	schema, err := os.ReadFile(*schemaPath)
	if err != nil {
		log.Fatalf("read schema: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		log.Fatalf("apply schema: %v", err)
	}
	log.Printf("schema applied from %s", *schemaPath)
}
