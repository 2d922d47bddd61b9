package order

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"checkout/internal/logger"
	"checkout/pkg/errors"
)

type Handler struct {
	service *Service
	logger  logger.Logger
}

func NewHandler(service *Service, log logger.Logger) *Handler {
	return &Handler{service: service, logger: log}
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api")
	{
		api.POST("/order", h.CreateOrder)
		api.GET("/event", h.FindByFilters)
		api.GET("/event/all", h.FindAll)
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	status := errors.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	}
	c.JSON(status, errors.ToErrorResponse(err))
}

// CreateOrder godoc
// @Summary      Create an order
// @Description  Persist a new order and publish its initial event to the start-saga topic
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        order  body      CreateOrderRequest  true  "Order lines"
// @Success      200    {object}  models.Order
// @Failure      400    {object}  map[string]interface{}
// @Failure      503    {object}  map[string]interface{}
// @Router       /api/order [post]
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	o, err := h.service.CreateOrder(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// FindByFilters godoc
// @Summary      Latest event of a saga
// @Description  Look up the latest stored event by orderId or transactionId; orderId wins when both are set
// @Tags         events
// @Produce      json
// @Param        orderId        query     string  false  "Order ID"
// @Param        transactionId  query     string  false  "Transaction ID"
// @Success      200            {object}  models.Event
// @Failure      400            {object}  map[string]interface{}
// @Failure      404            {object}  map[string]interface{}
// @Router       /api/event [get]
func (h *Handler) FindByFilters(c *gin.Context) {
	var filters EventFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	event, err := h.service.FindByFilters(c.Request.Context(), filters)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// FindAll godoc
// @Summary      List events
// @Description  List stored saga events, newest first
// @Tags         events
// @Produce      json
// @Success      200  {array}   models.Event
// @Failure      500  {object}  map[string]interface{}
// @Router       /api/event/all [get]
func (h *Handler) FindAll(c *gin.Context) {
	events, err := h.service.FindAll(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}
