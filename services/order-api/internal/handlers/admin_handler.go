package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/freshbasket/fulfillment-core/pkg"
	"github.com/freshbasket/fulfillment-core/pkg/utils"
	"github.com/freshbasket/fulfillment-core/services/order-api/internal/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AdminHandler struct {
	logger  *zap.Logger
	service services.AdminService
}

func NewAdminHandler(logger *zap.Logger, svc services.AdminService) *AdminHandler {
	return &AdminHandler{logger: logger, service: svc}
}

func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup) {
	admin := r.Group("/admin")
	admin.GET("/slots", h.ListSlots)
	admin.GET("/risk-alerts", h.ListRiskAlerts)
	admin.POST("/risk-alerts/scan", h.TriggerRiskScan)
}

func (h *AdminHandler) ListSlots(c *gin.Context) {
	traceID, err := utils.GetTraceID(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, pkg.ErrorResponse{
			Code:    pkg.ErrServerCode.Code,
			Message: err.Error(),
		})
		return
	}
	showInactive := c.Query("showInactive") == "true"

	from, ok := h.dateParam(c, "startDate")
	if !ok {
		return
	}
	to, ok := h.dateParam(c, "endDate")
	if !ok {
		return
	}

	slots, err := h.service.ListSlots(c.Request.Context(), traceID, showInactive, from, to)
	if err != nil {
		errResp := pkg.ToErrorResponse(h.logger, traceID, err)
		c.JSON(errResp.Status, errResp)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": slots})
}

// dateParam parses an optional RFC 3339 or YYYY-MM-DD query parameter,
// writing the error response itself on malformed input.
func (h *AdminHandler) dateParam(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, true
		}
	}
	c.JSON(http.StatusBadRequest, pkg.ErrorResponse{
		Code:    pkg.ErrInvalidInputCode.Code,
		Message: name + " must be RFC 3339 or YYYY-MM-DD",
	})
	return nil, false
}

func (h *AdminHandler) ListRiskAlerts(c *gin.Context) {
	traceID, err := utils.GetTraceID(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, pkg.ErrorResponse{
			Code:    pkg.ErrServerCode.Code,
			Message: err.Error(),
		})
		return
	}

	status := pkg.RiskAlertStatus(c.Query("status"))
	minScore := 0.0
	if raw := c.Query("minScore"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 || parsed > 1 {
			c.JSON(http.StatusBadRequest, pkg.ErrorResponse{
				Code:    pkg.ErrInvalidInputCode.Code,
				Message: "minScore must be a number in [0,1]",
			})
			return
		}
		minScore = parsed
	}

	alerts, err := h.service.ListRiskAlerts(c.Request.Context(), traceID, status, minScore)
	if err != nil {
		errResp := pkg.ToErrorResponse(h.logger, traceID, err)
		c.JSON(errResp.Status, errResp)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

func (h *AdminHandler) TriggerRiskScan(c *gin.Context) {
	traceID, err := utils.GetTraceID(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, pkg.ErrorResponse{
			Code:    pkg.ErrServerCode.Code,
			Message: err.Error(),
		})
		return
	}

	var window time.Duration // zero means the configured default
	if raw := c.Query("windowHours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours < 1 || hours > 168 {
			c.JSON(http.StatusBadRequest, pkg.ErrorResponse{
				Code:    pkg.ErrInvalidInputCode.Code,
				Message: "windowHours must be an integer between 1 and 168",
			})
			return
		}
		window = time.Duration(hours) * time.Hour
	}

	scanned, alerted, err := h.service.TriggerRiskScan(c.Request.Context(), traceID, window)
	if err != nil {
		errResp := pkg.ToErrorResponse(h.logger, traceID, err)
		c.JSON(errResp.Status, errResp)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"scanned": scanned,
		"alerted": alerted,
	})
}
