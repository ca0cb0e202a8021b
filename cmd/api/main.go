package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"evacroute/internal/api"
	"evacroute/internal/buildinfo"
	"evacroute/internal/config"
	"evacroute/internal/metrics"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	srvDeps, err := api.NewServer(cfg)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}
	defer srvDeps.Close()
	metrics.RegisterDefault()

	mux := newMux(srvDeps)
	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(metricsMiddleware(mux, rateLimit(cfg.Server.RateRPS, cfg.Server.RateBurst, mux))),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Start webhook worker
	worker := srvDeps.NewWebhookWorker()
	worker.Start()

	go func() {
		info := buildinfo.Info()
		log.Printf("API listening on %s version=%s commit=%s", addr, info["version"], info["commit"])
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Printf("shutting down")
	close(worker.Stop)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func newMux(s *api.Server) *http.ServeMux {
	mux := http.NewServeMux()

	// Graphs
	mux.HandleFunc("/v1/graphs", s.GraphsHandler)
	mux.HandleFunc("/v1/graphs/", s.GraphByCityHandler) // {city}, /document, /risk, /hazards

	// Routing
	mux.HandleFunc("/v1/routes", s.RoutesHandler)
	mux.HandleFunc("/v1/evacuate", s.EvacuateHandler)
	mux.HandleFunc("/v1/plans", s.PlansHandler)
	mux.HandleFunc("/v1/plans/", s.PlanByIDHandler)
	mux.HandleFunc("/v1/optimizer/config", s.OptimizerConfigHandler)

	// Events and subscriptions
	mux.HandleFunc("/v1/events/stream", s.EventsStreamHandler)
	mux.HandleFunc("/v1/events/ws", s.EventsWSHandler)
	mux.HandleFunc("/v1/subscriptions", s.SubscriptionsHandler)
	mux.HandleFunc("/v1/subscriptions/", s.SubscriptionByIDHandler)

	// Admin
	mux.HandleFunc("/v1/admin/optimizer/config", s.AdminOptimizerConfigHandler)
	mux.HandleFunc("/v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)
	mux.HandleFunc("/v1/admin/webhook-dlq", s.WebhookDLQHandler)
	mux.HandleFunc("/v1/admin/webhook-dlq/", s.WebhookDLQHandler)
	mux.HandleFunc("/v1/admin/stats", s.StatsHandler)
	mux.HandleFunc("/debug/config", s.DebugJSON)

	// Docs
	mux.HandleFunc("/openapi.yaml", s.OpenAPIHandler)
	mux.HandleFunc("/openapi.json", s.OpenAPIJSONHandler)
	mux.HandleFunc("/docs", s.DocsHandler)

	// Health and metrics
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	return mux
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		dur := time.Since(start)
		log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, dur)
	})
}
