package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/callpanel-api/api/swagger"
	"github.com/noah-isme/callpanel-api/internal/handler"
	internalmiddleware "github.com/noah-isme/callpanel-api/internal/middleware"
	"github.com/noah-isme/callpanel-api/internal/models"
	"github.com/noah-isme/callpanel-api/internal/service"
	"github.com/noah-isme/callpanel-api/pkg/config"
	"github.com/noah-isme/callpanel-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/callpanel-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/callpanel-api/pkg/middleware/requestid"
)

type routeHandlers struct {
	announcements *handler.AnnouncementHandler
	phrases       *handler.PhraseHandler
	audio         *handler.AudioHandler
	hours         *handler.HourHandler
	realtime      *handler.RealtimeHandler
	metrics       *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService, tokens internalmiddleware.TokenValidator, h routeHandlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics, "/health", "/ready", "/metrics"))

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Signed links are their own credential so displays can stream without a bearer token.
	api.GET("/audio/files/:token", h.audio.File)

	events := api.Group("/units/:unitId/events")
	events.Use(internalmiddleware.JWTWithQuery(tokens), internalmiddleware.RequireUnitAccess("unitId"))
	events.GET("", h.realtime.Events)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(tokens))

	admins := internalmiddleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)
	operators := internalmiddleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleOperator)
	audit := func(action, resource string) gin.HandlerFunc {
		return internalmiddleware.Audit(logr, action, resource)
	}

	secured.GET("/metrics/summary", admins, h.metrics.Summary)
	secured.GET("/health/dependencies", operators, h.metrics.Dependencies)

	units := secured.Group("/units/:unitId")
	units.Use(internalmiddleware.RequireUnitAccess("unitId"))
	units.GET("/announcements", h.announcements.List)
	units.POST("/announcements", admins, audit("create", "announcement"), h.announcements.Create)
	units.GET("/announcements/due", operators, h.announcements.Due)
	units.POST("/announcements/trigger", operators, audit("trigger", "announcement"), h.announcements.Trigger)
	units.GET("/phrases", h.phrases.List)
	units.POST("/phrases", admins, audit("create", "phrase"), h.phrases.Create)
	units.GET("/phrases/active", h.phrases.Active)
	units.POST("/hour-announcement", operators, audit("announce", "hour"), h.hours.Announce)

	announcements := secured.Group("/announcements")
	announcements.GET("/:id", h.announcements.Get)
	announcements.PUT("/:id", admins, audit("update", "announcement"), h.announcements.Update)
	announcements.DELETE("/:id", admins, audit("delete", "announcement"), h.announcements.Delete)
	announcements.POST("/:id/audio", operators, h.announcements.GenerateAudio)
	announcements.POST("/:id/replay", operators, audit("replay", "announcement"), h.announcements.Replay)

	phrases := secured.Group("/phrases")
	phrases.PUT("/:id", admins, audit("update", "phrase"), h.phrases.Update)
	phrases.DELETE("/:id", admins, audit("delete", "phrase"), h.phrases.Delete)

	audio := secured.Group("/audio")
	audio.POST("/resolve", operators, h.audio.Resolve)
	audio.GET("/cache/stats", operators, h.audio.Stats)
	audio.POST("/cache/invalidate", admins, audit("invalidate", "audio_cache"), h.audio.Invalidate)
	audio.DELETE("/cache/:category", admins, audit("clear", "audio_cache"), h.audio.Clear)
	audio.GET("/hours/compose", h.hours.Compose)
	audio.GET("/hours/check", operators, h.hours.Check)

	return r
}
