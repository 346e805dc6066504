package handlers

import (
	"shop-svc/middleware"
	"shop-svc/models"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the /api surface. Every order route requires a bearer token.
func RegisterRoutes(router *gin.Engine, jwtSecret []byte, orders *OrderHandler, products *ProductHandler) {
	api := router.Group("/api")
	auth := middleware.AuthMiddleware(jwtSecret)
	staffOnly := middleware.RequireRoles(models.RoleStaff, models.RoleAdmin)

	api.GET("/products/:id", products.GetProduct)
	api.POST("/products/:id/restock", auth, staffOnly, products.Restock)

	orderRoutes := api.Group("/orders", auth)
	orderRoutes.POST("", orders.CreateOrder)
	orderRoutes.GET("/mine", orders.GetMyOrders)
	orderRoutes.GET("/:id", orders.GetOrder)
	orderRoutes.PUT("/:id/pay", orders.PayOrder)
	orderRoutes.PUT("/:id/status", staffOnly, orders.UpdateOrderStatus)
}
