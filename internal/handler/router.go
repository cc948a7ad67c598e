package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mcollab/internal/middleware"
)

const requestIDKey = middleware.ContextRequestIDKey

type RouterDeps struct {
	Sync      *SyncHandler
	Documents *DocumentHandler
	// ConnectWindow throttles websocket upgrades per client address; zero disables it.
	ConnectWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/ws", middleware.RateLimit(deps.ConnectWindow), deps.Sync.Serve)
	api.GET("/documents/:id", deps.Documents.Get)
	api.GET("/documents/:id/presence", deps.Documents.Presence)
}
