package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomwire/internal/auth"
	"github.com/vovakirdan/roomwire/internal/bus"
	"github.com/vovakirdan/roomwire/internal/config"
	"github.com/vovakirdan/roomwire/internal/core"
	"github.com/vovakirdan/roomwire/internal/rooms"
	"github.com/vovakirdan/roomwire/internal/store"
)

// Deps are the collaborators the HTTP edge routes into.
type Deps struct {
	Hub           *core.Hub
	Auth          *auth.Service
	Authenticator *auth.Authenticator
	Rooms         *rooms.Service
	Store         store.Store
	Bus           bus.Bus
}

// NewServer builds an HTTP server with health, REST and WebSocket routes.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(deps, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewHandler returns the routed handler wrapped in CORS.
func NewHandler(deps Deps, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	gin.SetMode(gin.ReleaseMode)

	l := logger.With().Str("component", "http").Logger()
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(&l))

	router.GET("/health", healthHandler)

	ws := NewWSHandler(deps.Hub, deps.Authenticator, cfg, &l)
	router.GET("/ws", ws.Handle)

	api := NewAPIHandlers(deps.Auth, cfg, &l)
	roomHandlers := NewRoomHandlers(deps.Rooms, deps.Store, deps.Hub, cfg, &l)
	userHandlers := NewUserHandlers(deps.Store, deps.Bus, &l)

	public := router.Group("/api")
	public.POST("/register", api.Register)
	public.POST("/login", api.Login)
	public.POST("/logout", api.Logout)

	protected := router.Group("/api")
	protected.Use(AuthMiddleware(deps.Authenticator, &l))
	protected.GET("/rooms", roomHandlers.ListRooms)
	protected.POST("/rooms", roomHandlers.CreateRoom)
	protected.GET("/rooms/:id/messages", roomHandlers.ListMessages)
	protected.GET("/users/me", userHandlers.Me)
	protected.DELETE("/users/me", userHandlers.DeleteMe)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{stdhttp.MethodGet, stdhttp.MethodPost, stdhttp.MethodDelete, stdhttp.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	return c.Handler(router)
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
