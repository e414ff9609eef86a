package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/ticketkart/internal/domain/purchase"
	"github.com/xenking/ticketkart/internal/handler"
	"github.com/xenking/ticketkart/internal/notify"
	"github.com/xenking/ticketkart/internal/repository"
	"github.com/xenking/ticketkart/pkg/health"
	"github.com/xenking/ticketkart/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	purchaseRepo := repository.NewPurchaseRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	apikeyRepo := repository.NewAPIKeyRepository(pool)

	// Order-confirmation notifier: SMTP when configured, log fallback otherwise.
	var notifier purchase.Notifier
	if mailCfg := cfg.Mailer(); mailCfg.Enabled() {
		mailer, err := notify.NewMailer(mailCfg)
		if err != nil {
			return errors.Wrap(err, "create mailer")
		}
		notifier = mailer
	} else {
		lg.Info("SMTP host not configured, order confirmations will only be logged")
		notifier = notify.NewLogNotifier(lg)
	}

	// Domain services.
	callbacks := purchase.CallbackURLs{
		Success: cfg.RedirectURL(),
		Failure: cfg.RedirectURL(),
	}
	purchaseSvc := purchase.NewService(purchaseRepo, ticketRepo, notifier, cfg.Gateway(), callbacks, lg)
	reconciler := purchase.NewReconciler(purchaseSvc, cfg.Gateway(), cfg.PayU.AllowUnverified, lg)

	// HTTP handlers.
	h := handler.NewHandler(purchaseSvc, reconciler, cfg.FrontendBaseURL)
	requireAuth := handler.RequireAPIKey(apikeyRepo, []byte(cfg.APIKeyPepper))

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	h.Register(mux, requireAuth)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "api_key"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("ticketkart-api", m),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		// Let in-flight confirmation emails finish before the pool closes.
		if err := purchaseSvc.Shutdown(shutdownCtx); err != nil {
			lg.Error("Notification drain error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
