package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/peplixcoin/cmeoi-sub001/middleware"
	"github.com/peplixcoin/cmeoi-sub001/models"
	"github.com/peplixcoin/cmeoi-sub001/services"
)

// CreateOrderRequest represents the request body for placing an order
type CreateOrderRequest struct {
	OrderID      string             `json:"order_id"`
	Username     string             `json:"username"`
	OrderTime    *time.Time         `json:"order_time"`
	Items        []models.OrderItem `json:"items" binding:"required,min=1"`
	TableNumber  int                `json:"table_number"`
	Address      string             `json:"address"`
	MobileNumber string             `json:"mobile_number"`
}

// UpdateStatusRequest represents the request body for an order status change
type UpdateStatusRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
}

// UpdatePaymentRequest represents the request body for a payment status change
type UpdatePaymentRequest struct {
	PaymentStatus models.PaymentStatus `json:"payment_status" binding:"required"`
}

// AssignDeliveryRequest represents the request body for assigning a delivery agent
type AssignDeliveryRequest struct {
	DeliverymanID string `json:"deliverymanId" binding:"required"`
}

// EditItemsRequest represents the request body for replacing an order's items
type EditItemsRequest struct {
	Items []models.OrderItem `json:"items" binding:"required,min=1"`
}

// OrderController serves order snapshots and mutations
type OrderController struct {
	orders *services.OrderService
	admins *services.AdminService
}

// NewOrderController creates an order controller
func NewOrderController(orders *services.OrderService, admins *services.AdminService) *OrderController {
	return &OrderController{orders: orders, admins: admins}
}

// Create handles POST /orders and POST /orders/online - places a new order.
// Customers always order as themselves; staff may order on behalf of a username.
func (oc *OrderController) Create(kind models.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := middleware.GetCustomClaims(c)
		if err != nil {
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information")
			return
		}

		var req CreateOrderRequest
		if !bindJSON(c, &req) {
			return
		}

		username := claims.Username
		if middleware.IsStaff(c) && req.Username != "" {
			username = req.Username
		}

		in := services.CreateOrderInput{
			OrderID:      req.OrderID,
			Username:     username,
			Items:        req.Items,
			TableNumber:  req.TableNumber,
			Address:      req.Address,
			MobileNumber: req.MobileNumber,
		}
		if req.OrderTime != nil {
			in.OrderTime = *req.OrderTime
		}

		doc, err := oc.orders.Create(c.Request.Context(), kind, in)
		if err != nil {
			respondServiceError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"success": true,
			"data":    doc,
		})
	}
}

// Snapshot handles the fixed-filter list endpoints such as GET /orders/approved
func (oc *OrderController) Snapshot(kind models.Kind, q services.ListQuery) gin.HandlerFunc {
	return func(c *gin.Context) {
		oc.respondList(c, kind, q)
	}
}

// UserSnapshot handles GET /orders/:id and GET /orders/online/:id where :id is
// a username. Customers may only list their own orders.
func (oc *OrderController) UserSnapshot(kind models.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		username, ok := authorizeUsername(c)
		if !ok {
			return
		}
		oc.respondList(c, kind, services.ListQuery{Username: username})
	}
}

// DeliverySnapshot handles GET /orders/online/delivery - orders assigned to the caller
func (oc *OrderController) DeliverySnapshot(c *gin.Context) {
	agent, ok := currentAdmin(c, oc.admins)
	if !ok {
		return
	}
	oc.respondList(c, models.KindOnline, services.ListQuery{AgentID: agent.ID})
}

func (oc *OrderController) respondList(c *gin.Context, kind models.Kind, q services.ListQuery) {
	docs, err := oc.orders.List(c.Request.Context(), kind, q)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    docs,
	})
}

// UpdateStatus handles PATCH /orders/:id/status and PATCH /orders/online/:id/status
func (oc *OrderController) UpdateStatus(kind models.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateStatusRequest
		if !bindJSON(c, &req) {
			return
		}
		oc.respondMutation(c)(oc.orders.UpdateStatus(c.Request.Context(), kind, c.Param("id"), req.Status))
	}
}

// UpdatePayment handles PATCH /orders/:id/payment and PATCH /orders/online/:id/payment
func (oc *OrderController) UpdatePayment(kind models.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdatePaymentRequest
		if !bindJSON(c, &req) {
			return
		}
		oc.respondMutation(c)(oc.orders.SetPaymentStatus(c.Request.Context(), kind, c.Param("id"), req.PaymentStatus))
	}
}

// AssignDelivery handles PATCH /orders/online/:id/assign-delivery
func (oc *OrderController) AssignDelivery(c *gin.Context) {
	var req AssignDeliveryRequest
	if !bindJSON(c, &req) {
		return
	}
	oc.respondMutation(c)(oc.orders.AssignDeliveryAgent(c.Request.Context(), c.Param("id"), req.DeliverymanID))
}

// EditItems handles PUT /orders/:id/items and PUT /orders/online/:id/items
func (oc *OrderController) EditItems(kind models.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req EditItemsRequest
		if !bindJSON(c, &req) {
			return
		}
		oc.respondMutation(c)(oc.orders.EditItems(c.Request.Context(), kind, c.Param("id"), req.Items))
	}
}

func (oc *OrderController) respondMutation(c *gin.Context) func(models.Document, error) {
	return func(doc models.Document, err error) {
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    doc,
		})
	}
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request data",
				"details": err.Error(),
			},
		})
		return false
	}
	return true
}

// authorizeUsername reads the username path parameter and checks that the
// caller is staff or that user.
func authorizeUsername(c *gin.Context) (string, bool) {
	username := c.Param("id")

	claims, err := middleware.GetCustomClaims(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information")
		return "", false
	}
	if !middleware.IsStaff(c) && claims.Username != username {
		respondError(c, http.StatusForbidden, "FORBIDDEN", "You can only view your own orders")
		return "", false
	}
	return username, true
}

// currentAdmin resolves the staff account behind the token subject
func currentAdmin(c *gin.Context, admins *services.AdminService) (*models.Admin, bool) {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information")
		return nil, false
	}

	admin, err := admins.FindByAuth0ID(c.Request.Context(), auth0ID)
	if err != nil {
		respondServiceError(c, err)
		return nil, false
	}
	return admin, true
}
