package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/shopswift/commerce-backend/services/cart-service/controllers"
)

// RegisterCartRoutes mounts the cart API. Both the path form (/cart/:user/...) and the
// query/body form (/cart/item, /cart?id=) are served.
func RegisterCartRoutes(r gin.IRouter, controller *controllers.CartController) {
	r.GET("/cart", controller.GetCart)
	r.DELETE("/cart", controller.ClearCart)

	api := r.Group("/cart")
	{
		api.POST("/item", controller.AddItem)
		api.PATCH("/item", controller.UpdateItem)
		api.DELETE("/item", controller.RemoveItem)

		api.GET("/:user", controller.GetCart)
		api.DELETE("/:user", controller.ClearCart)
		api.POST("/:user/item", controller.AddItem)
		api.PATCH("/:user/item/:product_id", controller.UpdateItem)
		api.DELETE("/:user/item/:product_id", controller.RemoveItem)
	}
}

// RegisterAdminRoutes mounts operator endpoints for the cascade worker.
func RegisterAdminRoutes(r gin.IRouter, controller *controllers.AdminController) {
	admin := r.Group("/admin/cascade")
	{
		admin.GET("/stats", controller.Stats)
		admin.GET("/dead-letters", controller.ListDeadLetters)
		admin.POST("/dead-letters/replay", controller.ReplayDeadLetters)
	}
}
