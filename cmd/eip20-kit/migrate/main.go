package main

import (
	"context"
	"flag"
	"log"

	"github.com/uptrace/bun/migrate"

	"github.com/chainsafe/eip20-kit/pkg/config"
	"github.com/chainsafe/eip20-kit/pkg/migrations/kitdb"
	"github.com/chainsafe/eip20-kit/pkg/pgutil"
	mghelper "github.com/chainsafe/eip20-kit/pkg/pgutil/migrations"
)

func main() {
	cfgPath := flag.String("config", "config.example.yaml", "Path to configuration file")
	flag.Usage = mghelper.Usage
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("error reading configuration file: %s", err.Error())
	}
	if cfg.Storage.Driver != config.StoragePostgres {
		log.Fatalf("migrations require the %q storage driver, got %q", config.StoragePostgres, cfg.Storage.Driver)
	}

	ctx := context.Background()
	db, err := pgutil.ConnectDB(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("error connecting to database: %s", err.Error())
	}
	defer db.Close()

	log.Printf("Running migrations for eip20-kit database (%s)...\n", cfg.Database.Database)

	migrator := migrate.NewMigrator(db, kitdb.Migrations)
	if err := mghelper.RunMigrations(ctx, migrator, flag.Args()...); err != nil {
		mghelper.Exitf(err.Error())
	}
}
