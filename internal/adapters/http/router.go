package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/barkeep/voicelink/internal/bridge"
	"github.com/barkeep/voicelink/internal/config"
	"github.com/barkeep/voicelink/internal/session"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, ctrl *session.Controller, relay *bridge.Relay) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(ClientTokenMiddleware())

	log.Info().Str("module", "adapters.http").Int("port", cfg.Port).Msg("router setup")

	api := r.Group("/api")

	h := &sessionHandlers{ctrl: ctrl, relay: relay}
	api.POST("/session/start", h.start)
	api.POST("/session/stop", h.stop)
	api.POST("/session/event", h.sendEvent)
	api.GET("/status", h.status)

	api.GET("/ws/realtime", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("realtime ws endpoint hit")
		relay.HandleRealtime(ctx, c)
	})

	return r
}
