package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/pdv-labs/pos-gateway/internal/api"
	"github.com/pdv-labs/pos-gateway/internal/cart"
	"github.com/pdv-labs/pos-gateway/internal/catalog"
	"github.com/pdv-labs/pos-gateway/internal/checkout"
	"github.com/pdv-labs/pos-gateway/internal/dashboard"
	"github.com/pdv-labs/pos-gateway/internal/erp"
	"github.com/pdv-labs/pos-gateway/pkg/health"
	"github.com/pdv-labs/pos-gateway/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("erp_base_url", cfg.ERPBaseURL),
	)

	// Outbound ERP client with an instrumented transport.
	erpClient := erp.NewClient(cfg.ERPBaseURL, lg, erp.WithHTTPClient(&http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
		Timeout: 15 * time.Second,
	}))

	// Catalog cache: load once at startup. A cold start with the ERP down is
	// still a valid start; the cache fills on the first successful reload.
	cache := catalog.New(erpClient)
	if err := cache.Load(ctx); err != nil {
		lg.Warn("Starting with a partial catalog", zap.Error(err))
	}

	ledger := cart.NewLedger(cache)
	orch := checkout.New(erpClient, cache, ledger, lg)
	dashboards := dashboard.New(erpClient, cache, lg)

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("erp", 5*time.Second,
		health.HTTPCheck(&http.Client{Timeout: 5 * time.Second}, cfg.ERPBaseURL+"/produtos"))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Mux: health endpoints + API routes on one server.
	h := api.NewHandler(erpClient, cache, ledger, orch, dashboards)
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)

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
				AllowOrigins: cfg.CORS.Origins,
				AllowHeaders: []string{"Content-Type"},
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
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
