package controller

import (
	"context"
	"log/slog"
	"net/http"

	"techstore-order-service/internal/middleware"
	"techstore-order-service/internal/service"

	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	Gate         *service.Gate
	Auth         *service.AuthService
	Orders       *service.OrderService
	Logger       *slog.Logger
	APILimit     middleware.RateLimitConfig
	AuthAPILimit middleware.RateLimitConfig
}

// NewRouter arma las rutas. ctx acota las tareas de fondo de los middlewares.
func NewRouter(ctx context.Context, d RouterDeps) *gin.Engine {
	authCtl := NewAuthController(d.Auth)
	orderCtl := NewOrderController(d.Orders)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(d.Logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Rutas públicas
	public := r.Group("/auth", middleware.RateLimiter(ctx, d.AuthAPILimit))
	public.POST("/register", authCtl.Register)
	public.POST("/login", authCtl.Login)

	// Rutas protegidas (requieren token)
	auth := r.Group("/", middleware.RateLimiter(ctx, d.APILimit), middleware.AuthMiddleware(d.Gate))
	auth.GET("/auth/me", authCtl.Me)
	auth.PATCH("/auth/me", authCtl.UpdateProfile)
	auth.POST("/orders", orderCtl.Create)
	auth.GET("/orders/mine", orderCtl.GetMyOrders)
	auth.GET("/orders/:orderId", orderCtl.GetOrder)
	auth.GET("/orders/:orderId/latest", orderCtl.GetLatestStatus)
	auth.POST("/orders/:orderId/items", orderCtl.AddItem)
	auth.DELETE("/orders/:orderId/items/:productId", orderCtl.RemoveItem)
	auth.POST("/orders/:orderId/cancel", orderCtl.Cancel)

	// Rutas admin y moderador
	staff := auth.Group("/admin", middleware.StaffOnly(d.Gate))
	staff.GET("/orders", orderCtl.ListOrders)
	staff.PATCH("/orders/:orderId/status", orderCtl.UpdateStatus)

	// Sólo admin
	staff.PATCH("/principals/:id", middleware.AdminOnly(d.Gate), authCtl.UpdatePrincipal)

	return r
}
