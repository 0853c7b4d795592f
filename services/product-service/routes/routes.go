package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/shopswift/commerce-backend/services/product-service/controllers"
)

func RegisterProductRoutes(r gin.IRouter, controller *controllers.ProductController) {
	r.POST("/product", controller.CreateProduct)
	r.GET("/product", controller.GetProduct)

	productRoutes := r.Group("/product")
	{
		productRoutes.GET("/:id", controller.GetProductByID)
		productRoutes.PUT("/:id", controller.UpdateProduct)
		productRoutes.DELETE("/:id", controller.DeleteProduct)
	}
}
