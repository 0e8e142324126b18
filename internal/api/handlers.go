// Package api exposes the transfer order lifecycle over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/transfer-service/internal/application"
	"github.com/wms-platform/transfer-service/pkg/errors"
	"github.com/wms-platform/transfer-service/pkg/logging"
	"github.com/wms-platform/transfer-service/pkg/middleware"
)

// OrderService is the application surface the handlers drive
type OrderService interface {
	CreateOrder(ctx context.Context, cmd application.CreateOrderCommand) (*application.OrderDTO, error)
	GetOrder(ctx context.Context, query application.GetOrderQuery) (*application.OrderDTO, error)
	RequestEvaluation(ctx context.Context, cmd application.RequestEvaluationCommand) (*application.OrderDTO, error)
	ApproveCost(ctx context.Context, cmd application.ApproveCostCommand) (*application.OrderDTO, error)
	ApproveOrder(ctx context.Context, cmd application.ApproveOrderCommand) (*application.OrderDTO, error)
	ShipOrder(ctx context.Context, cmd application.ShipOrderCommand) (*application.OrderDTO, error)
	DispatchOrder(ctx context.Context, cmd application.DispatchOrderCommand) (*application.OrderDTO, error)
	RecordReceipt(ctx context.Context, cmd application.RecordReceiptCommand) (*application.OrderDTO, error)
	RequestReturn(ctx context.Context, cmd application.RequestReturnCommand) (*application.OrderDTO, error)
	CompleteOrder(ctx context.Context, cmd application.CompleteOrderCommand) (*application.OrderCompletedResponse, error)
	CloseOrder(ctx context.Context, cmd application.CloseOrderCommand) (*application.OrderDTO, error)
	RejectOrder(ctx context.Context, cmd application.RejectOrderCommand) (*application.OrderDTO, error)
	DeleteOrder(ctx context.Context, cmd application.DeleteOrderCommand) error
	Sweep(ctx context.Context, cmd application.SweepCommand) (*application.SweepResult, error)
	ListVariances(ctx context.Context, query application.ListVariancesQuery) ([]application.VarianceDTO, error)
}

var _ OrderService = (*application.OrderApplicationService)(nil)

// Handler serves the transfer order routes
type Handler struct {
	service OrderService
	logger  *logging.Logger
}

// NewHandler creates a new Handler
func NewHandler(service OrderService, logger *logging.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes mounts the order routes on the given group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	orders := rg.Group("/transfer-orders")
	{
		orders.POST("", h.createOrder)
		orders.GET("/:orderId", h.getOrder)
		orders.GET("/:orderId/variances", h.listVariances)
		orders.POST("/:orderId/evaluate", h.requestEvaluation)
		orders.POST("/:orderId/approve-cost", h.approveCost)
		orders.POST("/:orderId/approve", h.approveOrder)
		orders.POST("/:orderId/ship", h.shipOrder)
		orders.POST("/:orderId/dispatch", h.dispatchOrder)
		orders.POST("/:orderId/receipts", h.recordReceipt)
		orders.POST("/:orderId/returns", h.requestReturn)
		orders.POST("/:orderId/complete", h.completeOrder)
		orders.POST("/:orderId/close", h.closeOrder)
		orders.POST("/:orderId/reject", h.rejectOrder)
		orders.DELETE("/:orderId", h.deleteOrder)
	}

	rg.POST("/maintenance/sweep", h.sweep)
}

func (h *Handler) responder(c *gin.Context) *middleware.ErrorResponder {
	return middleware.NewErrorResponder(c, h.logger.Logger)
}

// orderID parses the :orderId path parameter
func orderID(c *gin.Context) (int64, *errors.AppError) {
	id, err := strconv.ParseInt(c.Param("orderId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.ErrValidationWithFields("invalid order id", map[string]string{
			"orderId": "must be a positive integer",
		})
	}
	return id, nil
}

// bindOptional binds a JSON body when one is present
func bindOptional(c *gin.Context, obj interface{}) *errors.AppError {
	if c.Request.ContentLength == 0 {
		return middleware.ValidateStruct(obj)
	}
	return middleware.BindAndValidate(c, obj)
}

func (h *Handler) respond(c *gin.Context, status int, result interface{}, err error) {
	if err != nil {
		h.responder(c).RespondWithError(err)
		return
	}
	c.JSON(status, result)
}

func (h *Handler) createOrder(c *gin.Context) {
	responder := h.responder(c)

	var req CreateOrderRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	order, err := h.service.CreateOrder(c.Request.Context(), application.CreateOrderCommand{
		ID:            req.ID,
		TransactionID: req.TransactionID,
		Scope:         req.Scope,
		From:          req.From,
		To:            req.To,
		Schema:        req.Schema,
		Items:         toItemInputs(req.Items),
		Requester:     middleware.GetUserID(c),
		Fees:          req.Fees.toInput(),
	})
	h.respond(c, http.StatusCreated, order, err)
}

func (h *Handler) getOrder(c *gin.Context) {
	id, appErr := orderID(c)
	if appErr != nil {
		h.responder(c).RespondWithAppError(appErr)
		return
	}

	order, err := h.service.GetOrder(c.Request.Context(), application.GetOrderQuery{OrderID: id})
	h.respond(c, http.StatusOK, order, err)
}

func (h *Handler) listVariances(c *gin.Context) {
	id, appErr := orderID(c)
	if appErr != nil {
		h.responder(c).RespondWithAppError(appErr)
		return
	}

	variances, err := h.service.ListVariances(c.Request.Context(), application.ListVariancesQuery{OrderID: id})
	if err != nil {
		h.responder(c).RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orderId": id, "variances": variances})
}

func (h *Handler) requestEvaluation(c *gin.Context) {
	id, appErr := orderID(c)
	if appErr != nil {
		h.responder(c).RespondWithAppError(appErr)
		return
	}

	order, err := h.service.RequestEvaluation(c.Request.Context(), application.RequestEvaluationCommand{
		OrderID:   id,
		Requester: middleware.GetUserID(c),
	})
	h.respond(c, http.StatusOK, order, err)
}

func (h *Handler) approveCost(c *gin.Context) {
	responder := h.responder(c)

	id, appErr := orderID(c)
	if appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	var req ApproveCostRequest
	if appErr := bindOptional(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	order, err := h.service.ApproveCost(c.Request.Context(), application.ApproveCostCommand{
		OrderID:  id,
		Approver: middleware.GetUserID(c),
		Amount:   req.Amount,
		Memo:     req.Memo,
	})
	h.respond(c, http.StatusOK, order, err)
}

func (h *Handler) approveOrder(c *gin.Context) {
	id, appErr := orderID(c)
	if appErr != nil {
		h.responder(c).RespondWithAppError(appErr)
		return
	}

	order, err := h.service.ApproveOrder(c.Request.Context(), application.ApproveOrderCommand{
		OrderID:  id,
		Approver: middleware.GetUserID(c),
	})
	h.respond(c, http.StatusOK, order, err)
}

func (h *Handler) shipOrder(c *gin.Context) {
	id, appErr := orderID(c)
	if appErr != nil {
		h.responder(c).RespondWithAppError(appErr)
		return
	}

	order, err := h.service.ShipOrder(c.Request.Context(), application.ShipOrderCommand{
		OrderID: id,
		Actor:   middleware.GetUserID(c),
	})
	h.respond(c, http.StatusOK, order, err)
}

func (h *Handler) dispatchOrder(c *gin.Context) {
	responder := h.responder(c)

	id, appErr := orderID(c)
	if appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	var req DispatchRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	order, err := h.service.DispatchOrder(c.Request.Context(), application.DispatchOrderCommand{
		OrderID:        id,
		Carrier:        req.Carrier,
		TrackingNumber: req.TrackingNumber,
		Actor:          middleware.GetUserID(c),
	})
	h.respond(c, http.StatusOK, order, err)
}

func (h *Handler) recordReceipt(c *gin.Context) {
	responder := h.responder(c)

	id, appErr := orderID(c)
	if appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	var req ReceiptRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	order, err := h.service.RecordReceipt(c.Request.Context(), application.RecordReceiptCommand{
		OrderID:       id,
		Package:       req.Package,
		Items:         toReceiptInputs(req.Items),
		CountedItems:  toReceiptInputs(req.CountedItems),
		BackupSerials: req.BackupSerials,
	})
	h.respond(c, http.StatusOK, order, err)
}

func (h *Handler) requestReturn(c *gin.Context) {
	responder := h.responder(c)

	id, appErr := orderID(c)
	if appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	var req ReturnRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	order, err := h.service.RequestReturn(c.Request.Context(), application.RequestReturnCommand{
		OrderID:        id,
		Items:          toItemInputs(req.Items),
		Replacement:    req.Replacement,
		TrackingSlug:   req.TrackingSlug,
		TrackingNumber: req.TrackingNumber,
		Requester:      middleware.GetUserID(c),
		Approver:       req.Approver,
	})
	h.respond(c, http.StatusOK, order, err)
}

func (h *Handler) completeOrder(c *gin.Context) {
	id, appErr := orderID(c)
	if appErr != nil {
		h.responder(c).RespondWithAppError(appErr)
		return
	}

	result, err := h.service.CompleteOrder(c.Request.Context(), application.CompleteOrderCommand{
		OrderID: id,
		Actor:   middleware.GetUserID(c),
	})
	h.respond(c, http.StatusOK, result, err)
}

func (h *Handler) closeOrder(c *gin.Context) {
	id, appErr := orderID(c)
	if appErr != nil {
		h.responder(c).RespondWithAppError(appErr)
		return
	}

	order, err := h.service.CloseOrder(c.Request.Context(), application.CloseOrderCommand{
		OrderID: id,
		Actor:   middleware.GetUserID(c),
	})
	h.respond(c, http.StatusOK, order, err)
}

func (h *Handler) rejectOrder(c *gin.Context) {
	responder := h.responder(c)

	id, appErr := orderID(c)
	if appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	var req RejectRequest
	if appErr := bindOptional(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	order, err := h.service.RejectOrder(c.Request.Context(), application.RejectOrderCommand{
		OrderID: id,
		Actor:   middleware.GetUserID(c),
		Memo:    req.Memo,
	})
	h.respond(c, http.StatusOK, order, err)
}

func (h *Handler) deleteOrder(c *gin.Context) {
	id, appErr := orderID(c)
	if appErr != nil {
		h.responder(c).RespondWithAppError(appErr)
		return
	}

	if err := h.service.DeleteOrder(c.Request.Context(), application.DeleteOrderCommand{
		OrderID: id,
		Actor:   middleware.GetUserID(c),
	}); err != nil {
		h.responder(c).RespondWithError(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"orderId": id, "status": "deleting"})
}

func (h *Handler) sweep(c *gin.Context) {
	result, err := h.service.Sweep(c.Request.Context(), application.SweepCommand{})
	h.respond(c, http.StatusOK, result, err)
}
