// internal/handler/health_handler.go
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"barcode-service/internal/config"
	"barcode-service/internal/database"
	"barcode-service/internal/service"
	"barcode-service/internal/utils"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// HealthHandler handles health check requests. db is nil when the scan
// journal is disabled.
type HealthHandler struct {
	db             *database.DB
	scannerService *service.ScannerService
	journal        *service.ScanJournal
	config         *config.Config
	logger         *utils.ServiceLogger
	startedAt      time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(
	db *database.DB,
	scannerService *service.ScannerService,
	journal *service.ScanJournal,
	config *config.Config,
	logger *zap.Logger,
) *HealthHandler {
	return &HealthHandler{
		db:             db,
		scannerService: scannerService,
		journal:        journal,
		config:         config,
		logger:         utils.NewServiceLogger(logger, "health-handler"),
		startedAt:      time.Now(),
	}
}

// HealthCheck performs general health check
// @Summary Health check
// @Description Overall service health: scanner connectivity, journal and database
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse "Service is healthy or degraded"
// @Failure 503 {object} HealthResponse "Service is unhealthy"
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	health := &HealthResponse{
		Status:    statusHealthy,
		Timestamp: time.Now(),
		Service:   h.config.App.Name,
		Version:   h.config.App.Version,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		Checks:    make(map[string]CheckResult),
	}

	scanners := h.scannerCheck()
	health.Checks["scanners"] = scanners
	if scanners.Status != statusHealthy {
		health.Status = statusDegraded
	}

	if h.journal != nil {
		stats := h.journal.Stats()
		health.Checks["journal"] = CheckResult{
			Status: statusHealthy,
			Data: map[string]interface{}{
				"enabled": stats.Enabled,
				"queued":  stats.Queued,
				"written": stats.Written,
				"failed":  stats.Failed,
				"dropped": stats.Dropped,
			},
		}
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := h.db.HealthCheck(ctx); err != nil {
			health.Status = statusUnhealthy
			health.Checks["database"] = CheckResult{
				Status:  statusUnhealthy,
				Message: err.Error(),
			}
		} else {
			health.Checks["database"] = CheckResult{
				Status:  statusHealthy,
				Message: "Database connection OK",
				Data:    h.db.GetStats(),
			}
		}
	}

	statusCode := http.StatusOK
	if health.Status == statusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, health)
}

// DatabaseHealthCheck checks database connectivity
// @Summary Database health check
// @Description Check scan journal database connectivity
// @Tags Health
// @Produce json
// @Success 200 {object} utils.APIResponse "Database is healthy"
// @Failure 503 {object} utils.APIResponse "Database is unhealthy or disabled"
// @Router /health/db [get]
func (h *HealthHandler) DatabaseHealthCheck(c *gin.Context) {
	if h.db == nil {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Database disabled", service.ErrJournalDisabled)
		return
	}

	startTime := time.Now()
	if err := h.db.HealthCheck(c.Request.Context()); err != nil {
		h.logger.Error("Database health check failed", zap.Error(err))
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Database unhealthy", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Database is healthy", gin.H{
		"status":           statusHealthy,
		"response_time_ms": time.Since(startTime).Milliseconds(),
		"stats":            h.db.GetStats(),
	})
}

// ReadinessCheck for Kubernetes readiness probe
// @Summary Readiness check
// @Description Ready once the journal database (if enabled) answers
// @Tags Health
// @Produce json
// @Success 200 {object} object{status=string,timestamp=string} "Service is ready"
// @Failure 503 {object} object{status=string,reason=string} "Service is not ready"
// @Router /ready [get]
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	if h.db != nil {
		if err := h.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"reason": "database not available",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// LivenessCheck for Kubernetes liveness probe
// @Summary Liveness check
// @Tags Health
// @Produce json
// @Success 200 {object} object{status=string,timestamp=string} "Service is alive"
// @Router /live [get]
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

func (h *HealthHandler) scannerCheck() CheckResult {
	statuses := h.scannerService.List()

	online := 0
	states := make(map[string]interface{}, len(statuses))
	for _, status := range statuses {
		states[status.Name] = string(status.State)
		if status.IsOnline() {
			online++
		}
	}

	result := CheckResult{
		Status: statusHealthy,
		Data: map[string]interface{}{
			"total":  len(statuses),
			"online": online,
			"states": states,
		},
	}
	if online < len(statuses) {
		result.Status = statusDegraded
		result.Message = "One or more scanners are not connected"
	}
	return result
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult represents individual check result
type CheckResult struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}
