package handlers

import (
	"context"
	"net/http"

	"github.com/freshbasket/fulfillment-core/pkg"
	"github.com/freshbasket/fulfillment-core/pkg/utils"
	"github.com/freshbasket/fulfillment-core/pkg/views"
	"github.com/freshbasket/fulfillment-core/services/order-api/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrderHandler struct {
	logger  *zap.Logger
	service services.OrderService
}

func NewOrderHandler(logger *zap.Logger, svc services.OrderService) *OrderHandler {
	return &OrderHandler{logger: logger, service: svc}
}

// RegisterRoutes registers order routes on the provided route group.
func (h *OrderHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/orders", h.CreateOrder)
	r.GET("/orders/:id", h.GetOrder)
	r.GET("/users/:id/orders", h.ListUserOrders)
	r.POST("/orders/:id/cancel", h.CancelOrder)
	r.POST("/orders/:id/refund", h.RefundOrder)
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	traceID, err := utils.GetTraceID(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, pkg.ErrorResponse{
			Code:    pkg.ErrServerCode.Code,
			Message: err.Error(),
		})
		return
	}

	var req views.OrderRequest
	if err = c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, pkg.ErrorResponse{
			Code:    pkg.ErrInvalidInputCode.Code,
			Message: "invalid request body",
			Details: err.Error(),
		})
		return
	}

	resp, err := h.service.CreateOrder(c.Request.Context(), traceID, req)
	if err != nil {
		errResp := pkg.ToErrorResponse(h.logger, traceID, err)
		c.JSON(errResp.Status, errResp)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	traceID, orderID, ok := h.traceAndID(c)
	if !ok {
		return
	}
	detail, err := h.service.GetOrder(c.Request.Context(), traceID, orderID)
	if err != nil {
		errResp := pkg.ToErrorResponse(h.logger, traceID, err)
		c.JSON(errResp.Status, errResp)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *OrderHandler) ListUserOrders(c *gin.Context) {
	traceID, userID, ok := h.traceAndID(c)
	if !ok {
		return
	}
	orders, err := h.service.ListUserOrders(c.Request.Context(), traceID, userID)
	if err != nil {
		errResp := pkg.ToErrorResponse(h.logger, traceID, err)
		c.JSON(errResp.Status, errResp)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *OrderHandler) CancelOrder(c *gin.Context) {
	h.transition(c, h.service.CancelOrder)
}

func (h *OrderHandler) RefundOrder(c *gin.Context) {
	h.transition(c, h.service.RefundOrder)
}

func (h *OrderHandler) transition(c *gin.Context, fn func(ctx context.Context, traceID string, orderID uuid.UUID, reason string) error) {
	traceID, orderID, ok := h.traceAndID(c)
	if !ok {
		return
	}
	var req views.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, pkg.ErrorResponse{
			Code:    pkg.ErrInvalidInputCode.Code,
			Message: "invalid request body",
			Details: err.Error(),
		})
		return
	}
	if err := fn(c.Request.Context(), traceID, orderID, req.Reason); err != nil {
		errResp := pkg.ToErrorResponse(h.logger, traceID, err)
		c.JSON(errResp.Status, errResp)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orderId": orderID.String()})
}

// traceAndID pulls the trace id and the :id path parameter, writing the error
// response itself when either is missing or malformed.
func (h *OrderHandler) traceAndID(c *gin.Context) (string, uuid.UUID, bool) {
	traceID, err := utils.GetTraceID(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, pkg.ErrorResponse{
			Code:    pkg.ErrServerCode.Code,
			Message: err.Error(),
		})
		return "", uuid.Nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, pkg.ErrorResponse{
			Code:    pkg.ErrInvalidInputCode.Code,
			Message: "invalid id",
			Details: err.Error(),
		})
		return "", uuid.Nil, false
	}
	return traceID, id, true
}
