// cmd/tools/schema-migrate/main.go
//
// Applies the SQL schema to the configured PostgreSQL database.
//
//	go run ./cmd/tools/schema-migrate -path migrations/schema.sql
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"notification-system/internal/common/config"
	"notification-system/internal/common/database"
)

func main() {
	schemaPath := flag.String("path", "migrations/schema.sql", "Path to the schema file")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")
	flag.Parse()

	schema, err := os.ReadFile(*schemaPath)
	if err != nil {
		fmt.Printf("Error: cannot read schema file %s: %v\n", *schemaPath, err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error: config load failed: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		fmt.Printf("Error: postgres connection failed: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	if err := pg.Ping(ctx); err != nil {
		fmt.Printf("Error: postgres ping failed: %v\n", err)
		os.Exit(1)
	}

	if _, err := pg.Exec(ctx, string(schema)); err != nil {
		fmt.Printf("Error: schema apply failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Schema %s applied to %s/%s\n",
		*schemaPath, cfg.Database.Postgres.Host, cfg.Database.Postgres.Database)
}
