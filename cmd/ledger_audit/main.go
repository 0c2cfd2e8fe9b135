package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"warehouse/internal/config"
	"warehouse/internal/db"
	"warehouse/internal/domain"
	"warehouse/internal/logger"
	"warehouse/internal/repository"
	"warehouse/internal/service"
)

type options struct {
	fix     bool
	asJSON  bool
	timeout time.Duration
}

func parseFlags() options {
	var opts options
	flag.BoolVar(&opts.fix, "fix", false, "reset drifted product stock to the sum of batch remainders")
	flag.BoolVar(&opts.asJSON, "json", false, "print violations as JSON")
	flag.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall deadline")
	flag.Parse()
	return opts
}

func main() {
	opts := parseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}
	if cfg.Store != config.StorePostgres {
		fmt.Fprintln(os.Stderr, "ledger_audit needs STORE=postgres")
		os.Exit(2)
	}
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: "stderr"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: 4})
	if err != nil {
		log.Fatal("database error", zap.Error(err))
	}
	defer pool.Close()
	if err := db.RunMigrations(ctx, pool, log); err != nil {
		log.Fatal("migration error", zap.Error(err))
	}

	svc := service.New(repository.New(pool), log, nil)
	remaining, err := run(ctx, svc, opts, os.Stdout)
	if err != nil {
		log.Fatal("audit failed", zap.Error(err))
	}
	if remaining > 0 {
		pool.Close()
		os.Exit(1)
	}
}

// run audits the ledger, optionally repairs it, and returns how many
// violations are still present afterwards.
func run(ctx context.Context, svc *service.Service, opts options, out io.Writer) (int, error) {
	violations, err := svc.AuditInventory(ctx)
	if err != nil {
		return 0, err
	}
	if err := report(out, violations, opts.asJSON); err != nil {
		return 0, err
	}
	if len(violations) == 0 || !opts.fix {
		return len(violations), nil
	}

	repaired, err := svc.RepairStock(ctx)
	if err != nil {
		return 0, err
	}
	fmt.Fprintf(out, "repaired stock on %d product(s)\n", repaired)

	violations, err = svc.AuditInventory(ctx)
	if err != nil {
		return 0, err
	}
	if len(violations) > 0 {
		fmt.Fprintln(out, "violations remaining after repair:")
		if err := report(out, violations, opts.asJSON); err != nil {
			return 0, err
		}
	}
	return len(violations), nil
}

func report(out io.Writer, violations []domain.Violation, asJSON bool) error {
	if asJSON {
		if violations == nil {
			violations = []domain.Violation{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(violations)
	}
	if len(violations) == 0 {
		_, err := fmt.Fprintln(out, "ledger is consistent")
		return err
	}
	for _, v := range violations {
		line := fmt.Sprintf("%s product=%d expected=%s actual=%s", v.Kind, v.ProductID, v.Expected, v.Actual)
		if v.BatchID != nil {
			line += fmt.Sprintf(" batch=%d", *v.BatchID)
		}
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}
