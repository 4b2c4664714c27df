package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"muster/api/internal/cache"
	"muster/api/internal/config"
	"muster/api/internal/middleware"
	"muster/api/internal/models"
	"muster/api/internal/service"
)

// Stores are the persistence contracts the handlers run on.
type Stores struct {
	Users       service.UserStore
	Tokens      service.TokenStore
	GameSystems service.CatalogStore[*models.GameSystem]
	Factions    service.CatalogStore[*models.Faction]
}

type HandlerSet struct {
	log           zerolog.Logger
	cfg           *config.AppConfig
	tokens        *service.TokenService
	authenticator *service.Authenticator
	authService   *service.AuthService
	userService   *service.UserService
	gameSystems   *service.CatalogService[*models.GameSystem]
	factions      *service.CatalogService[*models.Faction]
	checks        []HealthCheck
}

func NewHandlerSet(
	log zerolog.Logger,
	cfg *config.AppConfig,
	stores Stores,
	backend cache.Backend,
	objects service.ObjectStore,
	checks ...HealthCheck,
) HandlerSet {
	authCache := cache.NewAuthCache(backend, cfg.Security.ChecksumSecret, log)
	tokens := service.NewTokenService(stores.Tokens, authCache, cfg.Security, log)
	artwork := service.NewArtworkService(objects, cfg.Storage.PresignTTL, log)

	return HandlerSet{
		log:           log,
		cfg:           cfg,
		tokens:        tokens,
		authenticator: service.NewAuthenticator(stores.Tokens, tokens, authCache, log),
		authService:   service.NewAuthService(stores.Users, stores.Tokens, tokens, log),
		userService:   service.NewUserService(stores.Users, tokens, log),
		gameSystems:   service.NewCatalogService[*models.GameSystem]("game-systems", stores.GameSystems, service.ValidateGameSystem, artwork, log),
		factions: service.NewCatalogService[*models.Faction]("factions", stores.Factions, service.ValidateFaction, artwork, log).
			WithReferences(service.FactionRefs(stores.GameSystems, stores.Factions)),
		checks: checks,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	v1.Use(middleware.Authenticate(h.authenticator, h.log))

	auth := v1.Group("/auth")
	auth.POST("/register", h.RegisterUser)
	auth.POST("/login", h.Login)
	auth.POST("/logout", middleware.RequireIdentity(), h.Logout)
	auth.POST("/sessions/revoke", middleware.RequireIdentity(), h.RevokeSessions)

	users := v1.Group("/users", middleware.RequireIdentity())
	users.GET("/me", h.Me)
	users.PATCH("/:id", middleware.RequireRoles(models.RoleAdmin), h.PatchUser)

	registerCatalog(v1.Group("/game-systems", middleware.RequireIdentity()), h.log, h.gameSystems, gameSystemCodec)
	registerCatalog(v1.Group("/factions", middleware.RequireIdentity()), h.log, h.factions, factionCodec)
}
