package main

import (
	"context"
	"flag"
	"log"

	"github.com/pressly/goose/v3"

	"github.com/classcover/classcover-api/pkg/config"
	"github.com/classcover/classcover-api/pkg/database"
)

func main() {
	dir := flag.String("dir", "migrations", "directory with migration files")
	flag.Parse()

	command := "up"
	if args := flag.Args(); len(args) > 0 {
		command = args[0]
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("failed to set goose dialect: %v", err)
	}

	ctx := context.Background()
	switch command {
	case "up":
		err = goose.UpContext(ctx, db.DB, *dir)
	case "down":
		err = goose.DownContext(ctx, db.DB, *dir)
	case "status":
		err = goose.StatusContext(ctx, db.DB, *dir)
	case "version":
		var version int64
		version, err = goose.GetDBVersionContext(ctx, db.DB)
		if err == nil {
			log.Printf("migration version: %d", version)
		}
	default:
		log.Fatalf("unknown command %q (want up, down, status, or version)", command)
	}
	if err != nil {
		log.Fatalf("migration %s failed: %v", command, err)
	}
}
