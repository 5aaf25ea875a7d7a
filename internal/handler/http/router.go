package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snapprint/snapprint/pkg/health"
	"github.com/snapprint/snapprint/pkg/middleware"

	"github.com/snapprint/snapprint/internal/service"
)

// RouterConfig carries the cross-cutting knobs the router needs.
type RouterConfig struct {
	CORS           middleware.CORSConfig
	RateLimitRPS   int
	RateLimitBurst int
	PprofCIDRs     []string
}

// NewRouter creates a chi router with all routes registered.
func NewRouter(
	orderService *service.OrderService,
	bundleService *service.BundleService,
	healthHandler *health.Handler,
	validateToken middleware.TokenValidator,
	fileStore FileReader,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(120 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("snapprint"))
	r.Use(middleware.Tracing("snapprint"))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg.CORS))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	orderHandler := NewOrderHandler(orderService, logger)
	bundleHandler := NewBundleHandler(bundleService, logger)

	if fileStore != nil {
		fileHandler := NewFileHandler(fileStore)
		r.Get("/files/*", fileHandler.ServeFile)
	}

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
		r.Use(middleware.Auth(validateToken))

		r.Post("/", orderHandler.SubmitOrder)
		r.Get("/", orderHandler.ListOrders)
		r.Get("/my", orderHandler.ListMyOrders)
		r.Get("/{orderId}", orderHandler.GetOrder)
		r.Put("/{orderId}/status", orderHandler.UpdateOrderStatus)
		r.Get("/{orderId}/bundle", bundleHandler.ExportBundle)
	})

	return r
}
