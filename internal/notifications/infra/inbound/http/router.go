package http

import "github.com/gin-gonic/gin"

func RegisterNotificationRoutes(r *gin.Engine, handler *NotificationHandler) {
	r.GET("/notifications", handler.ListNotifications)
}
