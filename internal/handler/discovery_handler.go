// internal/handler/discovery_handler.go
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"barcode-service/internal/service"
	"barcode-service/internal/utils"
)

// DiscoveryHandler handles port discovery requests
type DiscoveryHandler struct {
	discoveryService *service.DiscoveryService
	logger           *utils.ServiceLogger
}

// NewDiscoveryHandler creates a new discovery handler
func NewDiscoveryHandler(discoveryService *service.DiscoveryService, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		discoveryService: discoveryService,
		logger:           utils.NewServiceLogger(logger, "discovery-handler"),
	}
}

// ScanPorts lists ports that may carry a scanner
// @Summary Scan for scanner ports
// @Description Enumerate serial ports, raw USB devices and configured TCP bridges
// @Tags Discovery
// @Produce json
// @Param type query string false "Source type" Enums(all, serial, usb, tcp) default(all)
// @Param timeout query string false "Scan timeout" default(30s)
// @Param min_confidence query number false "Minimum confidence (0-1)"
// @Success 200 {object} utils.APIResponse{data=object{ports_found=int,ports=[]discovery.DiscoveredPort}} "Port scan completed"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Failure 500 {object} utils.APIResponse "Scan failed"
// @Router /discovery/ports [get]
func (h *DiscoveryHandler) ScanPorts(c *gin.Context) {
	req, ok := h.bindScanRequest(c)
	if !ok {
		return
	}

	ports, err := h.discoveryService.ScanPorts(c.Request.Context(), req)
	if err != nil {
		h.respondScanError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Port scan completed", gin.H{
		"ports_found": len(ports),
		"ports":       ports,
	})
}

// SuggestScanners turns discovered ports into scanner config entries
// @Summary Suggest scanner configuration
// @Description Scan and return a scanners config entry for every candidate port
// @Tags Discovery
// @Produce json
// @Param type query string false "Source type" Enums(all, serial, usb, tcp) default(all)
// @Param timeout query string false "Scan timeout" default(30s)
// @Param min_confidence query number false "Minimum confidence (0-1)"
// @Success 200 {object} utils.APIResponse{data=object{suggestions=[]service.SuggestedScanner}} "Suggestions ready"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Router /discovery/suggestions [get]
func (h *DiscoveryHandler) SuggestScanners(c *gin.Context) {
	req, ok := h.bindScanRequest(c)
	if !ok {
		return
	}

	suggestions, err := h.discoveryService.SuggestScanners(c.Request.Context(), req)
	if err != nil {
		h.respondScanError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Scanner suggestions ready", gin.H{
		"suggestions": suggestions,
	})
}

// GetSources lists the usable discovery sources
// @Summary Discovery sources
// @Tags Discovery
// @Produce json
// @Success 200 {object} utils.APIResponse{data=object{sources=[]string}} "Sources"
// @Router /discovery/sources [get]
func (h *DiscoveryHandler) GetSources(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Discovery sources retrieved", gin.H{
		"sources": h.discoveryService.GetAvailableSources(),
	})
}

func (h *DiscoveryHandler) bindScanRequest(c *gin.Context) (*service.ScanRequest, bool) {
	req := &service.ScanRequest{
		ScanType: "all",
		Timeout:  "30s",
	}
	if err := c.ShouldBindQuery(req); err != nil {
		utils.ValidationErrorResponse(c, map[string]string{"query": err.Error()})
		return nil, false
	}
	if req.MinConfidence < 0 || req.MinConfidence > 1 {
		utils.ValidationErrorResponse(c, map[string]string{"min_confidence": "must be between 0 and 1"})
		return nil, false
	}
	return req, true
}

func (h *DiscoveryHandler) respondScanError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrInvalidScanRequest) {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid scan request", err)
		return
	}
	h.logger.Error("Failed to scan ports", zap.Error(err))
	utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to scan ports", err)
}
