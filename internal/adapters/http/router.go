package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/watchroom/server/internal/adapters/signal"
	"github.com/watchroom/server/internal/auth"
	"github.com/watchroom/server/internal/config"
)

func SetupRouter(ctx context.Context, cfg *config.Config, resolver *auth.Resolver, accounts *AuthHandlers, rooms *RoomHandlers, ctl *signal.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	if cfg.FrontendURL != "" {
		r.Use(CORSMiddleware(cfg.FrontendURL))
	}

	log.Info().Str("module", "adapters.http").Msg("router setup")

	r.POST("/auth/guest", accounts.GuestLogin)
	r.POST("/auth/username", AuthMiddleware(resolver), accounts.Rename)

	room := r.Group("/room", AuthMiddleware(resolver))
	room.POST("/create", rooms.Create)
	room.POST("/join/:id", rooms.Join)
	room.POST("/exit/:id", rooms.Exit)
	room.POST("/:id", rooms.SaveURL)

	api := r.Group("/api")
	api.GET("/ws", func(c *gin.Context) {
		ctl.HandleSignal(ctx, c)
	})

	return r
}
