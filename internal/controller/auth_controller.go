package controller

import (
	"net/http"

	"techstore-order-service/internal/dto"
	"techstore-order-service/internal/middleware"
	"techstore-order-service/internal/model"
	"techstore-order-service/internal/service"

	"github.com/gin-gonic/gin"
)

type AuthController struct {
	Service *service.AuthService
}

func NewAuthController(s *service.AuthService) *AuthController {
	return &AuthController{Service: s}
}

// POST /auth/register — público
func (ctl *AuthController) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sess, err := ctl.Service.Register(c.Request.Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// POST /auth/login — público, con rate limit propio
func (ctl *AuthController) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sess, err := ctl.Service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// GET /auth/me
func (ctl *AuthController) Me(c *gin.Context) {
	c.JSON(http.StatusOK, middleware.CurrentPrincipal(c))
}

// PATCH /auth/me — el usuario edita su propio perfil
func (ctl *AuthController) UpdateProfile(c *gin.Context) {
	var req dto.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	p, err := ctl.Service.UpdateProfile(c.Request.Context(), middleware.CurrentPrincipal(c).ID, req.ToUpdate())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// PATCH /admin/principals/:id — sólo admin
func (ctl *AuthController) UpdatePrincipal(c *gin.Context) {
	var req dto.UpdatePrincipalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var upd service.PrincipalUpdate
	if req.Role != nil {
		role := model.Role(*req.Role)
		upd.Role = &role
	}
	upd.Active = req.Active

	p, err := ctl.Service.UpdatePrincipal(c.Request.Context(), c.Param("id"), upd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
