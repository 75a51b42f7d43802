package routes

import (
	"github.com/gin-gonic/gin"

	"storefront/internal/handlers"
	"storefront/internal/middleware"
	"storefront/internal/models"
)

type Handlers struct {
	Auth  *handlers.AuthHandler
	Admin *handlers.AdminHandler
	Cart  *handlers.CartHandler // nil, если Redis не настроен
}

func SetupRoutes(
	r *gin.Engine,
	h Handlers,
	authenticate gin.HandlerFunc,
	publicLimit gin.HandlerFunc,
) *gin.Engine {
	api := r.Group("/api")

	// ---- public
	public := api.Group("/auth", publicLimit)
	{
		public.POST("/register", h.Auth.Register)
		public.POST("/login", h.Auth.Login)
		public.POST("/otp/request", h.Auth.RequestOTP)
		public.POST("/otp/login", h.Auth.LoginWithOTP)
		public.POST("/password/reset", h.Auth.ResetPassword)
	}
	api.POST("/admin/login", publicLimit, h.Auth.AdminLogin)

	// ---- protected
	me := api.Group("/auth", authenticate)
	{
		me.GET("/me", h.Auth.Me)
		me.PUT("/password", publicLimit, h.Auth.ChangePassword)
		me.POST("/logout", h.Auth.Logout)
	}

	// ADMIN
	admin := api.Group("/admin", authenticate, middleware.RequireRoles(models.RoleAdmin))
	{
		admin.GET("/accounts", h.Admin.List)
		admin.GET("/accounts/:id", h.Admin.Get)
		admin.POST("/accounts/:id/block", h.Admin.Block)
		admin.POST("/accounts/:id/unblock", h.Admin.Unblock)
		admin.POST("/accounts/:id/unlock", h.Admin.Unlock)
	}

	// CART
	if h.Cart != nil {
		cart := api.Group("/cart", authenticate)
		{
			cart.GET("", h.Cart.Get)
			cart.DELETE("", h.Cart.Clear)
			cart.POST("/items", h.Cart.AddItem)
			cart.DELETE("/items/:productId", h.Cart.RemoveItem)
		}
	}

	return r
}
