package controller

import (
	"net/http"

	"techstore-order-service/internal/dto"
	"techstore-order-service/internal/middleware"
	"techstore-order-service/internal/model"
	"techstore-order-service/internal/service"

	"github.com/gin-gonic/gin"
)

type OrderController struct {
	Service *service.OrderService
}

func NewOrderController(s *service.OrderService) *OrderController {
	return &OrderController{Service: s}
}

// POST /orders — el dueño es siempre quien hace la petición
func (ctl *OrderController) Create(c *gin.Context) {
	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	o, err := ctl.Service.PlaceOrder(c.Request.Context(), service.NewOrder{
		UserID:         middleware.CurrentPrincipal(c).ID,
		ShippingMethod: model.ShippingMethod(req.ShippingMethod),
		PaymentMethod:  model.PaymentMethod(req.PaymentMethod),
		Shipping:       req.Shipping.ToModel(),
	}, dto.LineRequests(req.Items))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewOrderResponse(o))
}

// GET /orders/mine
func (ctl *OrderController) GetMyOrders(c *gin.Context) {
	orders, err := ctl.Service.GetByUserID(c.Request.Context(), middleware.CurrentPrincipal(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewOrderResponses(orders))
}

// GET /orders/:orderId — dueño, admin o moderador
func (ctl *OrderController) GetOrder(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}
	o, err := ctl.Service.GetForPrincipal(c.Request.Context(), orderID, middleware.CurrentPrincipal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewOrderResponse(o))
}

// GET /orders/:orderId/latest — sólo el último registro del historial
func (ctl *OrderController) GetLatestStatus(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}
	o, err := ctl.Service.GetForPrincipal(c.Request.Context(), orderID, middleware.CurrentPrincipal(c))
	if err != nil {
		respondError(c, err)
		return
	}

	last := o.LatestStatus()
	if last == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "el pedido no tiene historial"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"orderId":    o.OrderID,
		"status":     last.Status,
		"statusText": last.Status.Text(),
		"note":       last.Note,
		"timestamp":  last.Timestamp,
	})
}

// POST /orders/:orderId/items
func (ctl *OrderController) AddItem(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}
	var req dto.LineItemDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	o, err := ctl.Service.AddLineItem(c.Request.Context(), orderID, req.ToRequest(), middleware.CurrentPrincipal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewOrderResponse(o))
}

// DELETE /orders/:orderId/items/:productId
func (ctl *OrderController) RemoveItem(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}
	o, err := ctl.Service.RemoveLineItem(c.Request.Context(), orderID, c.Param("productId"), middleware.CurrentPrincipal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewOrderResponse(o))
}

// POST /orders/:orderId/cancel
func (ctl *OrderController) Cancel(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}
	var req dto.CancelRequest
	// el cuerpo es opcional
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	o, err := ctl.Service.Cancel(c.Request.Context(), orderID, req.Reason, middleware.CurrentPrincipal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewOrderResponse(o))
}

// PATCH /admin/orders/:orderId/status — admin o moderador
func (ctl *OrderController) UpdateStatus(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	o, err := ctl.Service.ChangeStatus(
		c.Request.Context(),
		orderID,
		model.OrderStatus(req.Status),
		req.Note,
		middleware.CurrentPrincipal(c),
	)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewOrderResponse(o))
}

// GET /admin/orders?status=shipped
func (ctl *OrderController) ListOrders(c *gin.Context) {
	var (
		orders []*model.Order
		err    error
	)
	if raw := c.Query("status"); raw != "" {
		status := model.OrderStatus(raw)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "estado desconocido: " + raw})
			return
		}
		orders, err = ctl.Service.GetByStatus(c.Request.Context(), status)
	} else {
		orders, err = ctl.Service.GetAll(c.Request.Context())
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewOrderSummaries(orders))
}
