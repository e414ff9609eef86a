// Command seed-db loads the ticket catalog from a JSON file and provisions an
// API key for a user.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/ticketkart/internal/repository"
)

type ticketJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

const upsertTicketSQL = `INSERT INTO tickets (id, name, description, price)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO UPDATE SET name = $2, description = $3, price = $4`

const upsertAPIKeySQL = `INSERT INTO apikeys (id, key_hash, user_id, name)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (key_hash) DO UPDATE SET user_id = $3, name = $4`

func main() {
	var (
		databaseURL  string
		ticketsFile  string
		apiKey       string
		apiKeyPepper string
		userID       string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&ticketsFile, "tickets-file", "db/seed/tickets.json", "path to tickets JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or TICKET_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or TICKET_API_KEY_PEPPER env)")
	flag.StringVar(&userID, "user-id", "seed-user", "user id the seeded API key belongs to")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("TICKET_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or TICKET_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("TICKET_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, ticketsFile, apiKey, apiKeyPepper, userID); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, ticketsFile, apiKey, pepper, userID string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "create pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	data, err := os.ReadFile(ticketsFile)
	if err != nil {
		return errors.Wrap(err, "read tickets file")
	}

	var tickets []ticketJSON
	if err := json.Unmarshal(data, &tickets); err != nil {
		return errors.Wrap(err, "parse tickets file")
	}

	for _, t := range tickets {
		if _, err := pool.Exec(ctx, upsertTicketSQL, t.ID, t.Name, t.Description, t.Price); err != nil {
			return errors.Wrapf(err, "upsert ticket %q", t.ID)
		}
	}
	slog.Info("tickets seeded", slog.Int("count", len(tickets)))

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	if _, err := pool.Exec(ctx, upsertAPIKeySQL, uuid.New().String(), keyHash, userID, "seed"); err != nil {
		return errors.Wrap(err, "upsert api key")
	}
	slog.Info("api key seeded", slog.String("user_id", userID))

	return nil
}
