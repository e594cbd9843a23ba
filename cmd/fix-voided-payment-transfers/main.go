// Command fix-voided-payment-transfers repairs transfer rows left live after
// their payment was voided, and transfer pairs whose sides disagree.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/odyssey-folio/internal/app"
	"github.com/odyssey-erp/odyssey-folio/internal/folio"
	"github.com/odyssey-erp/odyssey-folio/internal/platform/db"
	"github.com/odyssey-erp/odyssey-folio/internal/repair"
	"github.com/odyssey-erp/odyssey-folio/internal/shared"
	"github.com/odyssey-erp/odyssey-folio/internal/tax"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:]))
}

func run(ctx context.Context, args []string) int {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return exitUsage
	}
	opts, err := parseOptions(args, cfg.SystemUserID, os.Stderr)
	if err != nil {
		return exitUsage
	}
	opts.Stdout, opts.Stderr = os.Stdout, os.Stderr

	// Logs go to stderr so --json output stays parseable.
	logger := app.NewLoggerTo(cfg, os.Stderr)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.DBOptions("fix-voided-payment-transfers"))
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		return exitUsage
	}
	defer pool.Close()

	ledger := folio.NewService(folio.NewRepository(pool), tax.NewService(tax.NewRepository(pool)), shared.NewAuditLogger(pool), logger)
	svc := repair.NewService(repair.NewFinder(pool), ledger, logger)
	return Execute(ctx, svc, opts)
}
