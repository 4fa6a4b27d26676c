package httptransport

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/transport/http/handler"
	"github.com/partner-up-dev/mvp-HA-sub000/internal/transport/http/middleware"
	sloggin "github.com/samber/slog-gin"
)

func NewRouter(
	logger *slog.Logger,
	tickHandler *handler.TickHandler,
	jobHandler *handler.JobHandler,
	jwtKey []byte,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	authed := r.Group("/", middleware.Auth(jwtKey))

	authed.POST("/scheduler/tick", tickHandler.Tick)
	authed.GET("/scheduler/status", tickHandler.Status)

	authed.POST("/jobs", jobHandler.Schedule)
	authed.GET("/jobs/:id", jobHandler.GetByID)
	authed.POST("/jobs/cancel", jobHandler.Cancel)

	return r
}
