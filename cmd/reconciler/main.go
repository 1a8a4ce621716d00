package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"civicpulse/internal/config"
	"civicpulse/internal/domain/services"
	"civicpulse/internal/infrastructure/cache"
	"civicpulse/internal/infrastructure/database"
	"civicpulse/internal/infrastructure/database/repository"
	"civicpulse/pkg/logger"
)

func main() {
	app := &cli.Command{
		Name:  "reconciler",
		Usage: "Repair department report copies that drifted from the primary record",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
			},
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Run a single pass and exit",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Only report drifted reports, do not repair them",
			},
		},
		Action: run,
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c *cli.Command) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		TimeFormat: cfg.Logger.TimeFormat,
	}).WithComponent("reconciler-worker")
	logger.SetGlobal(log)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer db.Close()

	reports := repository.NewReportRepository(db.Pool(), log)

	if c.Bool("dry-run") {
		ids, err := reports.FindIndexDrift(ctx, cfg.Reconciler.BatchSize)
		if err != nil {
			return err
		}
		for _, id := range ids {
			log.Warn().Str("report_id", id.String()).Msg("department index out of sync")
		}
		log.Info().Int("drifted", len(ids)).Msg("dry run finished")
		return nil
	}

	redisCache, err := cache.NewRedis(ctx, cfg.Redis, log)
	if err != nil {
		return err
	}
	defer redisCache.Close()

	reconciler := services.NewReconciler(reports, redisCache,
		cfg.Reconciler.Interval, cfg.Reconciler.BatchSize, cfg.Reconciler.LockTTL, log)

	if c.Bool("once") {
		repaired, err := reconciler.RunOnce(ctx)
		if err != nil {
			return err
		}
		log.Info().Int("repaired", repaired).Msg("reconciliation pass finished")
		return nil
	}

	if err := reconciler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("shutdown complete")
	return nil
}
