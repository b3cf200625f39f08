package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"jobtracker/internal/config"
	"jobtracker/migrations"
	"jobtracker/pkg/logger"
)

func main() {
	dsn := flag.String("dsn", "", "postgres DSN (defaults to the db section of the config)")
	flag.Parse()

	log := logger.NewLogger()
	defer log.Sync()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: migrate [-dsn url] <command>")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  up          Migrate to the latest version")
		fmt.Fprintln(os.Stderr, "  up-one      Migrate one version up")
		fmt.Fprintln(os.Stderr, "  down        Roll back one version")
		fmt.Fprintln(os.Stderr, "  status      Show migration status")
		fmt.Fprintln(os.Stderr, "  version     Show current version")
		os.Exit(1)
	}

	if *dsn == "" {
		cfg, err := config.Load()
		if err != nil {
			log.Fatal("Failed to load config", zap.Error(err))
		}
		*dsn = cfg.DB.DSN()
	}

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatal("Failed to set dialect", zap.Error(err))
	}

	cmd := args[0]
	switch cmd {
	case "up":
		err = migrations.Run(db)
	case "up-one":
		err = goose.UpByOne(db, ".")
	case "down":
		err = goose.Down(db, ".")
	case "status":
		err = goose.Status(db, ".")
	case "version":
		err = goose.Version(db, ".")
	default:
		log.Fatal("Unknown command", zap.String("command", cmd))
	}

	if err != nil {
		log.Fatal("Migration command failed", zap.String("command", cmd), zap.Error(err))
	}
	log.Info("Migration command completed", zap.String("command", cmd))
}
