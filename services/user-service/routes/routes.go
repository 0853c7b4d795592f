package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/shopswift/commerce-backend/services/user-service/controllers"
)

// RegisterUserRoutes mounts the user API. The static /user/username route wins over the
// :username parameter for PUT.
func RegisterUserRoutes(r gin.IRouter, controller *controllers.UserController) {
	r.POST("/user", controller.CreateUser)
	r.GET("/user", controller.GetUser)
	r.PUT("/user", controller.UpdateProfileByEmail)
	r.DELETE("/user", controller.DeleteUser)

	api := r.Group("/user")
	{
		api.PUT("/username", controller.UpdateUsername)
		api.GET("/:username", controller.GetUser)
		api.PUT("/:username", controller.UpdateProfile)
		api.PUT("/:username/email", controller.UpdateEmail)
		api.DELETE("/:username", controller.DeleteUser)
	}
}
