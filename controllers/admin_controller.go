package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/peplixcoin/cmeoi-sub001/models"
	"github.com/peplixcoin/cmeoi-sub001/services"
)

// CreateAdminRequest represents the request body for registering a staff account
type CreateAdminRequest struct {
	Auth0ID  string      `json:"auth0_id" binding:"required"`
	Username string      `json:"username" binding:"required"`
	Role     models.Role `json:"role" binding:"required"`
}

// AdminController manages staff accounts
type AdminController struct {
	admins *services.AdminService
}

// NewAdminController creates an admin controller
func NewAdminController(admins *services.AdminService) *AdminController {
	return &AdminController{admins: admins}
}

// CreateAdmin handles POST /admins - registers a staff account (SuperAdmin only)
func (ac *AdminController) CreateAdmin(c *gin.Context) {
	var req CreateAdminRequest
	if !bindJSON(c, &req) {
		return
	}

	admin := models.Admin{
		Auth0ID:  req.Auth0ID,
		Username: req.Username,
		Role:     req.Role,
	}
	if err := ac.admins.Create(c.Request.Context(), &admin); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    admin,
	})
}

// ListDeliveryAgents handles GET /admins/delivery-agents
func (ac *AdminController) ListDeliveryAgents(c *gin.Context) {
	agents, err := ac.admins.ListByRole(c.Request.Context(), models.RoleDeliveryMan)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    agents,
	})
}
