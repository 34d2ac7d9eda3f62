package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/codeshare/internal/handlers"
)

func registerSessionRoutes(api *gin.RouterGroup, handler *handlers.SessionHandler) {
	group := api.Group("/session")
	group.GET("", handler.Get)
	group.GET("/file", handler.File)
}

func registerEventRoutes(api *gin.RouterGroup, handler *handlers.EventsHandler) {
	api.GET("/events", handler.List)
}

func registerMonitoringRoutes(api *gin.RouterGroup, handler *handlers.MonitoringHandler) {
	if handler == nil {
		return
	}
	api.Group("/monitoring").GET("/summary", handler.Summary)
}
