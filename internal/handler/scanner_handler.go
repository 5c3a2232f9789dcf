// internal/handler/scanner_handler.go
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"barcode-service/internal/model"
	"barcode-service/internal/service"
	"barcode-service/internal/utils"
)

// ScannerHandler serves scanner status, recent barcodes and the scan history
type ScannerHandler struct {
	scannerService *service.ScannerService
	journal        *service.ScanJournal
	logger         *utils.ServiceLogger
}

// NewScannerHandler creates a new scanner handler
func NewScannerHandler(scannerService *service.ScannerService, journal *service.ScanJournal, logger *zap.Logger) *ScannerHandler {
	return &ScannerHandler{
		scannerService: scannerService,
		journal:        journal,
		logger:         utils.NewServiceLogger(logger, "scanner-handler"),
	}
}

// ListScanners lists every configured scanner
// @Summary List scanners
// @Tags Scanners
// @Produce json
// @Success 200 {object} utils.APIResponse{data=object{scanners=[]model.ScannerStatus,total=int}} "Scanners retrieved"
// @Router /scanners [get]
func (h *ScannerHandler) ListScanners(c *gin.Context) {
	scanners := h.scannerService.List()
	utils.SuccessResponse(c, http.StatusOK, "Scanners retrieved successfully", gin.H{
		"scanners": scanners,
		"total":    len(scanners),
	})
}

// GetScanner returns one scanner's status
// @Summary Get scanner
// @Tags Scanners
// @Produce json
// @Param name path string true "Scanner name"
// @Success 200 {object} utils.APIResponse{data=model.ScannerStatus} "Scanner retrieved"
// @Failure 404 {object} utils.APIResponse "Scanner not found"
// @Router /scanners/{name} [get]
func (h *ScannerHandler) GetScanner(c *gin.Context) {
	status, err := h.scannerService.Get(c.Param("name"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Scanner retrieved successfully", status)
}

// GetRecentBarcodes returns the newest barcodes held in memory for a scanner
// @Summary Recent barcodes
// @Tags Scanners
// @Produce json
// @Param name path string true "Scanner name"
// @Param limit query int false "Maximum number of barcodes" default(20)
// @Success 200 {object} utils.APIResponse{data=object{barcodes=[]model.Barcode}} "Barcodes retrieved"
// @Failure 404 {object} utils.APIResponse "Scanner not found"
// @Router /scanners/{name}/barcodes [get]
func (h *ScannerHandler) GetRecentBarcodes(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 0 {
		utils.ValidationErrorResponse(c, map[string]string{"limit": "must be a non-negative integer"})
		return
	}

	barcodes, err := h.scannerService.RecentBarcodes(c.Param("name"), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Barcodes retrieved successfully", gin.H{
		"barcodes": barcodes,
		"count":    len(barcodes),
	})
}

// RestartScanner closes and reopens a scanner
// @Summary Restart scanner
// @Tags Scanners
// @Produce json
// @Param name path string true "Scanner name"
// @Success 200 {object} utils.APIResponse{data=model.ScannerStatus} "Scanner restarted"
// @Failure 404 {object} utils.APIResponse "Scanner not found"
// @Router /scanners/{name}/restart [post]
func (h *ScannerHandler) RestartScanner(c *gin.Context) {
	status, err := h.scannerService.Restart(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Info("Scanner restarted via API",
		zap.String("scanner", status.Name),
		zap.String("state", string(status.State)),
	)
	utils.SuccessResponse(c, http.StatusOK, "Scanner restarted", status)
}

// ListScans queries the scan journal
// @Summary Scan history
// @Tags Scans
// @Produce json
// @Param scanner query string false "Scanner name"
// @Param value query string false "Exact barcode value"
// @Param since query string false "RFC3339 lower bound"
// @Param until query string false "RFC3339 upper bound"
// @Param limit query int false "Page size" default(50)
// @Param offset query int false "Page offset" default(0)
// @Success 200 {object} utils.APIResponse{data=object{scans=[]model.ScanRecord,total=int,has_more=bool}} "Scans retrieved"
// @Failure 400 {object} utils.APIResponse "Invalid filter"
// @Failure 503 {object} utils.APIResponse "Journal disabled"
// @Router /scans [get]
func (h *ScannerHandler) ListScans(c *gin.Context) {
	filter, validationErrors := parseScanFilter(c)
	if len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	scans, total, err := h.journal.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	page := utils.NewPage(total, filter.Limit, filter.Offset, len(scans))
	utils.PageResponse(c, "Scans retrieved successfully", "scans", scans, page)
}

// ScanSummary counts journaled scans per scanner
// @Summary Scan counts per scanner
// @Tags Scans
// @Produce json
// @Param since query string false "RFC3339 lower bound" default(24h ago)
// @Success 200 {object} utils.APIResponse{data=object{counts=object}} "Summary retrieved"
// @Failure 503 {object} utils.APIResponse "Journal disabled"
// @Router /scans/summary [get]
func (h *ScannerHandler) ScanSummary(c *gin.Context) {
	since := time.Now().UTC().Add(-24 * time.Hour)
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			utils.ValidationErrorResponse(c, map[string]string{"since": "must be RFC3339"})
			return
		}
		since = parsed
	}

	counts, err := h.journal.CountByScanner(c.Request.Context(), since)
	if err != nil {
		h.respondError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Scan summary retrieved", gin.H{
		"since":  since,
		"counts": counts,
	})
}

func (h *ScannerHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrScannerNotFound):
		utils.ErrorResponse(c, http.StatusNotFound, "Scanner not found", err)
	case errors.Is(err, service.ErrJournalDisabled):
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Scan journal is disabled", err)
	default:
		h.logger.Error("Scanner request failed", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Request failed", err)
	}
}

func parseScanFilter(c *gin.Context) (*model.ScanFilter, map[string]string) {
	filter := &model.ScanFilter{Limit: 50}
	errs := make(map[string]string)

	if v := c.Query("scanner"); v != "" {
		filter.ScannerName = &v
	}
	if v := c.Query("value"); v != "" {
		filter.Value = &v
	}
	for key, dst := range map[string]**time.Time{"since": &filter.Since, "until": &filter.Until} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			errs[key] = "must be RFC3339"
			continue
		}
		*dst = &t
	}
	for key, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			errs[key] = "must be a non-negative integer"
			continue
		}
		*dst = n
	}

	return filter, errs
}
