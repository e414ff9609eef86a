// Command settlement-export dumps finalized purchases as gzipped NDJSON for
// reconciliation against the payment gateway's settlement reports.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/ticketkart/internal/repository"
)

const exportSQL = `SELECT id, user_id, email, total, status, updated_at
	FROM purchases
	WHERE status IN ('confirmed', 'cancelled') AND updated_at >= $1 AND updated_at < $2
	ORDER BY updated_at`

// settlementRecord is one NDJSON line in the export file.
type settlementRecord struct {
	TxnID       string          `json:"txnid"`
	UserID      string          `json:"userId"`
	Email       string          `json:"email"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
	FinalizedAt time.Time       `json:"finalizedAt"`
}

func main() {
	var (
		databaseURL string
		outPath     string
		sinceStr    string
		untilStr    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&outPath, "out", "settlement.ndjson.gz", "output file path")
	flag.StringVar(&sinceStr, "since", "", "export window start, RFC 3339 (default: 24h ago)")
	flag.StringVar(&untilStr, "until", "", "export window end, RFC 3339 (default: now)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	since, until, err := parseWindow(sinceStr, untilStr)
	if err != nil {
		slog.Error("invalid export window", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, outPath, since, until); err != nil {
		slog.Error("settlement export failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("settlement export completed successfully", slog.String("out", outPath))
}

func parseWindow(sinceStr, untilStr string) (since, until time.Time, err error) {
	until = time.Now().UTC()
	if untilStr != "" {
		until, err = time.Parse(time.RFC3339, untilStr)
		if err != nil {
			return since, until, errors.Wrap(err, "parse --until")
		}
	}
	since = until.Add(-24 * time.Hour)
	if sinceStr != "" {
		since, err = time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			return since, until, errors.Wrap(err, "parse --since")
		}
	}
	if !since.Before(until) {
		return since, until, errors.New("--since must be before --until")
	}
	return since, until, nil
}

func run(ctx context.Context, databaseURL, outPath string, since, until time.Time) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return errors.Wrapf(err, "create %s", outPath)
	}
	defer func() { _ = out.Close() }()

	records := make(chan settlementRecord, 256)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(records)
		return queryRecords(ctx, pool, since, until, records)
	})
	g.Go(func() error {
		return writeRecords(ctx, out, records)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	return out.Close()
}

func queryRecords(
	ctx context.Context,
	pool *pgxpool.Pool,
	since, until time.Time,
	records chan<- settlementRecord,
) error {
	rows, err := pool.Query(ctx, exportSQL, since, until)
	if err != nil {
		return errors.Wrap(err, "query purchases")
	}
	defer rows.Close()

	var count uint64
	for rows.Next() {
		var rec settlementRecord
		if err := rows.Scan(&rec.TxnID, &rec.UserID, &rec.Email, &rec.Amount, &rec.Status, &rec.FinalizedAt); err != nil {
			return errors.Wrap(err, "scan purchase")
		}
		select {
		case records <- rec:
			count++
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "iterate purchases")
	}

	slog.Info("purchases queried", slog.Uint64("count", count))
	return nil
}

func writeRecords(ctx context.Context, out *os.File, records <-chan settlementRecord) error {
	gz := pgzip.NewWriter(out)
	enc := json.NewEncoder(gz)

	var count uint64
	for rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := enc.Encode(rec); err != nil {
			return errors.Wrap(err, "encode record")
		}
		count++
	}

	if err := gz.Close(); err != nil {
		return errors.Wrap(err, "close gzip writer")
	}

	slog.Info("records written", slog.Uint64("count", count))
	return nil
}
