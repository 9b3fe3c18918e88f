package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/julienschmidt/httprouter"

	"clubsync/internal/health"
	"clubsync/pkg/config"
	"clubsync/pkg/contracts"
	"clubsync/pkg/middleware"
)

type Application struct {
	cfg              *config.Config
	server           *http.Server
	idempotencyStore *middleware.InMemoryIdempotencyStore
	rateLimiter      *middleware.CallerRateLimiter
	healthHandler    http.Handler
	appHttpHandler   http.Handler
	webhookHandler   http.Handler
	shutdownHooks    []func()
}

func NewApplication() *Application {
	return &Application{}
}

// SetApp wires the routers and middleware chains. The webhook handler gets
// its own chain so signature verification never applies to staff endpoints.
func (a *Application) SetApp(cfg *config.Config, appHandler contracts.Handler, webhookHandler contracts.Handler) {
	a.cfg = cfg
	a.setHealthHandler(cfg)
	a.setAppHandler(cfg, appHandler)
	a.setWebhookHandler(cfg, webhookHandler)
	a.setAppServer()
}

// AddShutdownHook registers a callback run during graceful shutdown, before
// the HTTP server stops. Used for Kafka producers and consumers.
func (a *Application) AddShutdownHook(hook func()) {
	a.shutdownHooks = append(a.shutdownHooks, hook)
}

func (a *Application) setHealthHandler(cfg *config.Config) {
	healthRouter := httprouter.New()
	healthHandler := health.NewHandler(cfg.Client.Mongo, cfg.Log)
	healthHandler.RegisterRoutes(healthRouter)

	var healthHTTPHandler http.Handler = healthRouter
	healthHTTPHandler = middleware.RequestLogging(cfg.Log)(healthHTTPHandler)
	healthHTTPHandler = middleware.Recovery(cfg.Log)(healthHTTPHandler)
	a.healthHandler = healthHTTPHandler
	cfg.Log.Info("Health endpoints configured with minimal middleware (Recovery + Logging only)")
}

func (a *Application) setAppHandler(cfg *config.Config, appHandler contracts.Handler) {
	appRouter := httprouter.New()
	appHandler.RegisterRoutes(appRouter)

	a.idempotencyStore = middleware.NewInMemoryIdempotencyStore(cfg.IdempotencyTTL)
	a.rateLimiter = middleware.NewCallerRateLimiter(
		cfg.RateLimitRequests,
		cfg.RateLimitWindow,
		middleware.DefaultCallerExtractor,
		cfg.Log,
	)

	var appHttpHandler http.Handler = appRouter
	appHttpHandler = middleware.Idempotency(a.idempotencyStore, "Idempotency-Key")(appHttpHandler)
	appHttpHandler = middleware.RequestTimeout(cfg.RequestTimeout)(appHttpHandler)
	appHttpHandler = middleware.CallerRateLimit(a.rateLimiter)(appHttpHandler)
	appHttpHandler = middleware.ContentTypeValidation(cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.MaxRequestSize(int64(cfg.MaxRequestSize))(appHttpHandler)
	appHttpHandler = middleware.RequestLogging(cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.Recovery(cfg.Log)(appHttpHandler)
	a.appHttpHandler = appHttpHandler
	cfg.Log.Info("Application endpoints configured with full middleware stack")
}

func (a *Application) setWebhookHandler(cfg *config.Config, webhookHandler contracts.Handler) {
	if webhookHandler == nil {
		return
	}

	webhookRouter := httprouter.New()
	webhookHandler.RegisterRoutes(webhookRouter)

	var webhookHTTPHandler http.Handler = webhookRouter
	webhookHTTPHandler = middleware.RequestTimeout(cfg.RequestTimeout)(webhookHTTPHandler)
	if cfg.TrackmanWebhookSecret != "" {
		webhookHTTPHandler = middleware.TrackmanSignatureVerification(cfg.TrackmanWebhookSecret, cfg.Log)(webhookHTTPHandler)
		cfg.Log.Info("Webhook signature verification enabled")
	} else {
		cfg.Log.Warn("Webhook signature verification disabled, no secret configured")
	}
	webhookHTTPHandler = middleware.ContentTypeValidation(cfg.Log)(webhookHTTPHandler)
	webhookHTTPHandler = middleware.MaxRequestSize(int64(cfg.MaxRequestSize))(webhookHTTPHandler)
	webhookHTTPHandler = middleware.RequestLogging(cfg.Log)(webhookHTTPHandler)
	webhookHTTPHandler = middleware.Recovery(cfg.Log)(webhookHTTPHandler)
	a.webhookHandler = webhookHTTPHandler
	cfg.Log.Info("Webhook endpoints configured")
}

func (a *Application) setAppServer() {
	mux := http.NewServeMux()
	mux.Handle("/health", a.healthHandler)
	mux.Handle("/ready", a.healthHandler)
	if a.webhookHandler != nil {
		mux.Handle("/webhooks/", a.webhookHandler)
	}
	mux.Handle("/", a.appHttpHandler)

	a.server = &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      mux,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	a.cfg.Log.Info("HTTP server configured", "port", a.cfg.Port)
}

func (a *Application) Run() {
	serverErrors := make(chan error, 1)

	go func() {
		a.cfg.Log.Info("Starting HTTP server", "address", a.server.Addr)
		serverErrors <- a.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		a.cfg.Log.Fatal("HTTP server failed", "error", err)

	case sig := <-shutdown:
		a.cfg.Log.Info("Shutdown signal received", "signal", sig)
		a.gracefulShutdown()
	}
}

func (a *Application) gracefulShutdown() {
	a.cfg.Log.Info("Starting graceful shutdown...")

	a.cfg.Log.Info("Stopping background workers...")
	a.idempotencyStore.Stop()
	a.rateLimiter.Stop()
	for _, hook := range a.shutdownHooks {
		hook()
	}
	a.cfg.Log.Info("Background workers stopped")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("Server shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			a.cfg.Log.Fatal("Could not stop server gracefully", "error", err)
		}
	}

	a.cfg.Log.Info("Server stopped gracefully")
}
