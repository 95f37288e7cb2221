package main

import (
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dispatchd/internal/api"
	"dispatchd/internal/config"
	"dispatchd/internal/metrics"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	metrics.RegisterDefault()

	srv, err := api.NewServer(cfg)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	mux := http.NewServeMux()

	// Assignment cycles
	mux.HandleFunc("/v1/assignments/dynamic", srv.AssignDynamicHandler)
	mux.HandleFunc("/v1/assignments/reoptimize", srv.ReoptimizeHandler)
	mux.HandleFunc("/v1/assignments", srv.AssignmentsHandler)
	mux.HandleFunc("/v1/assignments/stream", srv.StreamHandler)

	// Orders
	mux.HandleFunc("/v1/orders", srv.OrdersHandler)
	mux.HandleFunc("/v1/orders/at-risk", srv.AtRiskHandler)
	mux.HandleFunc("/v1/orders/", srv.OrderStatusHandler)

	// Drivers: exact target paths shadow the id-prefixed routes
	mux.HandleFunc("/v1/drivers", srv.DriversHandler)
	mux.HandleFunc("/v1/drivers/targets", srv.DriverTargetsHandler)
	mux.HandleFunc("/v1/drivers/targets/", srv.DriverTargetsHandler)
	mux.HandleFunc("/v1/drivers/", srv.DriverByIDHandler)

	// Engine tuning and cycle history
	mux.HandleFunc("/v1/engine/config", srv.EngineConfigHandler)
	mux.HandleFunc("/v1/admin/cycles", srv.CyclesHandler)

	// Webhook subscriptions
	mux.HandleFunc("/v1/subscriptions", srv.SubscriptionsHandler)
	mux.HandleFunc("/v1/subscriptions/", srv.SubscriptionByIDHandler)

	// Health and metrics
	mux.HandleFunc("/healthz", srv.HealthHandler)
	mux.HandleFunc("/readyz", srv.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	limiter := api.NewRateLimiter(cfg.RateRPS, cfg.RateBurst)
	handler := logMiddleware(limiter.Middleware(api.Instrument(mux)))

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	worker := srv.NewWebhookWorker()
	worker.Start()

	log.Printf("API listening on :%s", cfg.Port)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, time.Since(start))
	})
}
