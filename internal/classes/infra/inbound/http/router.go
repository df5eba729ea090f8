package http

import "github.com/gin-gonic/gin"

func RegisterClassRoutes(r *gin.Engine, handler *ClassHandler) {
	classes := r.Group("/classes")
	{
		classes.POST("", handler.CreateClass)
		classes.GET("/:id", handler.GetClass)
		classes.GET("", handler.ListClasses)
	}
}
