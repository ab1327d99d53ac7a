package server

import (
	"github.com/labstack/echo/v4"

	"github.com/okaypadak/everup-backend/internal/infra/adapters/auth"
	"github.com/okaypadak/everup-backend/internal/infra/ports/http/handlers"
	"github.com/okaypadak/everup-backend/internal/infra/ports/http/middleware"
)

func New(
	verifier auth.Verifier,
	iceHandler *handlers.IceHandler,
	voiceHandler *handlers.VoiceHandler,
	wsHandler *handlers.WebSocketHandler,
) *echo.Echo {
	e := echo.New()

	e.HideBanner = true

	e.Use(middleware.SlogLogger())
	e.Use(middleware.PrometheusMiddleware())

	api := e.Group("/api")
	{
		v1 := api.Group("/v1")
		v1.Use(middleware.JWTAuthMiddleware(verifier))
		{
			v1.GET("/ice", iceHandler.IceServers)

			v1.GET("/ws", wsHandler.Handle)

			v1.GET("/voice/rooms/:roomId/state", voiceHandler.RoomState)
			v1.GET("/voice/rooms/:roomId/rtp-capabilities", voiceHandler.RouterCapabilities)
		}
	}

	e.Static("/", "web")

	return e
}
