// internal/routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"barcode-service/internal/config"
	"barcode-service/internal/database"
	"barcode-service/internal/events"
	"barcode-service/internal/handler"
	"barcode-service/internal/middleware"
	"barcode-service/internal/service"
	"barcode-service/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config           *config.Config
	logger           *zap.Logger
	db               *database.DB
	scannerService   *service.ScannerService
	journal          *service.ScanJournal
	discoveryService *service.DiscoveryService
	bus              *events.Bus
	registry         *prometheus.Registry

	wsHandler *handler.WebSocketHandler
}

// NewRouter creates a new router instance. db may be nil when the scan
// journal is disabled; registry may be nil to use the default registry.
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	db *database.DB,
	scannerService *service.ScannerService,
	journal *service.ScanJournal,
	discoveryService *service.DiscoveryService,
	bus *events.Bus,
	registry *prometheus.Registry,
) *Router {
	return &Router{
		config:           config,
		logger:           logger,
		db:               db,
		scannerService:   scannerService,
		journal:          journal,
		discoveryService: discoveryService,
		bus:              bus,
		registry:         registry,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() (*gin.Engine, error) {
	if r.config.IsProduction() || !r.config.IsDebugEnabled() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	if err := r.addMiddleware(router); err != nil {
		return nil, err
	}

	r.addRoutes(router)

	return router, nil
}

// Close releases the WebSocket clients
func (r *Router) Close() {
	if r.wsHandler != nil {
		r.wsHandler.Close()
	}
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) error {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	router.Use(middleware.CORSMiddleware(&r.config.Security))

	if r.config.Metrics.Enabled {
		httpMetrics, err := middleware.NewHTTPMetrics(r.config.Metrics.Namespace, r.registerer())
		if err != nil {
			return err
		}
		router.Use(middleware.MetricsMiddleware(httpMetrics))
	}

	r.logger.Info("Middleware configured")
	return nil
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.db, r.scannerService, r.journal, r.config, r.logger)
	scannerHandler := handler.NewScannerHandler(r.scannerService, r.journal, r.logger)
	discoveryHandler := handler.NewDiscoveryHandler(r.discoveryService, r.logger)
	r.wsHandler = handler.NewWebSocketHandler(r.scannerService, r.bus, r.config.Security, r.logger)

	r.addHealthRoutes(router, healthHandler)

	apiV1 := router.Group("/api/v1")
	r.addScannerRoutes(apiV1, scannerHandler)
	r.addScanRoutes(apiV1, scannerHandler)
	r.addDiscoveryRoutes(apiV1, discoveryHandler)

	r.wsHandler.RegisterRoutes(router.Group("/ws"))

	if r.config.Metrics.Enabled {
		router.GET(r.config.Metrics.Path, gin.WrapH(r.metricsHandler()))
	}

	r.addDocumentationRoutes(router)

	r.logger.Info("All routes configured successfully")
}

// addHealthRoutes sets up health check routes
func (r *Router) addHealthRoutes(router *gin.Engine, handler *handler.HealthHandler) {
	health := router.Group("")
	{
		health.GET("/health", handler.HealthCheck)
		health.GET("/health/db", handler.DatabaseHealthCheck)
		health.GET("/ready", handler.ReadinessCheck)
		health.GET("/live", handler.LivenessCheck)
	}
}

// addScannerRoutes sets up scanner status routes
func (r *Router) addScannerRoutes(api *gin.RouterGroup, handler *handler.ScannerHandler) {
	scanners := api.Group("/scanners")
	{
		scanners.GET("", handler.ListScanners)

		scanner := scanners.Group("/:name")
		{
			scanner.GET("", handler.GetScanner)
			scanner.GET("/barcodes", handler.GetRecentBarcodes)
			scanner.POST("/restart", handler.RestartScanner)
		}
	}
}

// addScanRoutes sets up scan history routes
func (r *Router) addScanRoutes(api *gin.RouterGroup, handler *handler.ScannerHandler) {
	scans := api.Group("/scans")
	{
		scans.GET("", handler.ListScans)
		scans.GET("/summary", handler.ScanSummary)
	}
}

// addDiscoveryRoutes sets up port discovery routes
func (r *Router) addDiscoveryRoutes(api *gin.RouterGroup, handler *handler.DiscoveryHandler) {
	discovery := api.Group("/discovery")
	{
		discovery.GET("/ports", handler.ScanPorts)
		discovery.GET("/suggestions", handler.SuggestScanners)
		discovery.GET("/sources", handler.GetSources)
	}
}

// addDocumentationRoutes sets up documentation routes
func (r *Router) addDocumentationRoutes(router *gin.Engine) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
}

func (r *Router) registerer() prometheus.Registerer {
	if r.registry != nil {
		return r.registry
	}
	return prometheus.DefaultRegisterer
}

func (r *Router) metricsHandler() http.Handler {
	if r.registry != nil {
		return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
	}
	return promhttp.Handler()
}
