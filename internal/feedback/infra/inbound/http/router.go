package http

import "github.com/gin-gonic/gin"

func RegisterFeedbackRoutes(r *gin.Engine, handler *FeedbackHandler) {
	r.POST("/alerts", handler.RaiseAlert)
	r.POST("/reports", handler.GenerateReport)
}
