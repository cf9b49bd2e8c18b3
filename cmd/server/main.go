/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the SACCO core server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (environment, optional .env)
  2. Build structured logger
  3. Initialize SQLite store
  4. Wire services (ledger mover, onboarding, savings, loans, shares,
     books, payment gateway when configured)
  5. Configure HTTP router
  6. Start server and interest scheduler with graceful shutdown

CONFIGURATION:
  All config via environment variables (see config/config.go):
    SERVER_PORT, SERVER_ALLOWED_ORIGINS, DATABASE_PATH,
    PESAPAL_CONSUMER_KEY, PESAPAL_CONSUMER_SECRET, PESAPAL_CALLBACK_URL,
    PESAPAL_IPN_URL, SMTP_HOST, SMTP_USERNAME, SMTP_PASSWORD,
    SAVINGS_ANNUAL_INTEREST_RATE, LOG_LEVEL

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the interest scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

DEGRADED MODES:
  - Without Pesapal credentials, online payment endpoints return 503.
  - Without SMTP config, notifications are logged and dropped.

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lunserk/sacco-core/api"
	"github.com/lunserk/sacco-core/books"
	"github.com/lunserk/sacco-core/config"
	"github.com/lunserk/sacco-core/ledger"
	"github.com/lunserk/sacco-core/loan"
	"github.com/lunserk/sacco-core/member"
	"github.com/lunserk/sacco-core/notify"
	"github.com/lunserk/sacco-core/payment"
	"github.com/lunserk/sacco-core/savings"
	"github.com/lunserk/sacco-core/shares"
	"github.com/lunserk/sacco-core/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	// Notifications
	var notifier notify.Notifier = notify.Noop{}
	if cfg.SMTP.Enabled() {
		notifier = notify.NewMailer(cfg.SMTP.Host, cfg.SMTP.Port,
			cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From, logger)
	}

	// Core services
	mover := ledger.NewMover(store)
	onboarder := member.NewOnboarder(store, store, notifier)
	savingsSvc := savings.NewService(mover, store, store, notifier, logger)
	loans := loan.NewManager(store, mover, store)
	sharesSvc := shares.NewService(store, store)
	keeper := books.NewKeeper(store)

	// Payment gateway, only when credentials are configured
	var settler *payment.Settler
	if cfg.Pesapal.Enabled() {
		gateway := payment.NewPesapal(payment.PesapalConfig{
			BaseURL:        cfg.Pesapal.BaseURL,
			ConsumerKey:    cfg.Pesapal.ConsumerKey,
			ConsumerSecret: cfg.Pesapal.ConsumerSecret,
			CallbackURL:    cfg.Pesapal.CallbackURL,
			IPNURL:         cfg.Pesapal.IPNURL,
			Currency:       cfg.Pesapal.Currency,
		}, logger)
		if err := gateway.RegisterIPN(context.Background()); err != nil {
			logger.Warn("gateway IPN registration failed, online payments degraded", zap.Error(err))
		}
		settler = payment.NewSettler(mover, store, gateway, loans, sharesSvc, store, logger)
	} else {
		logger.Info("payment gateway credentials not set, online payments disabled")
	}

	handler := api.NewHandler(store, mover, onboarder, savingsSvc, loans, sharesSvc, keeper, settler, logger)
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins)

	// Interest accrual sweep
	rate, err := decimal.NewFromString(cfg.Savings.AnnualInterestRate)
	if err != nil {
		logger.Fatal("invalid savings interest rate",
			zap.String("rate", cfg.Savings.AnnualInterestRate), zap.Error(err))
	}
	scheduler := api.NewInterestScheduler(savingsSvc, rate, logger)
	scheduler.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}
