package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/gvafram3/parcel-console/internal/repository"
)

const (
	// APIV1Prefix is the base path of every API route.
	APIV1Prefix = "/api/v1"
	// DefaultTokenTTL is how long a sign-in stays valid.
	DefaultTokenTTL = 8 * time.Hour
)

// Deps are the stub backend's collaborators.
type Deps struct {
	Storage  Pinger
	Parcels  repository.ParcelRepository
	Users    repository.UserRepository
	Tokens   repository.TokenRepository
	TokenTTL time.Duration
	Now      func() time.Time
	Logger   zerolog.Logger
}

// Register mounts all public routes on the given engine.
func Register(r *gin.Engine, d Deps) {
	if d.TokenTTL <= 0 {
		d.TokenTTL = DefaultTokenTTL
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	useFormFieldNames()
	log := d.Logger.With().Str("module", "handler").Logger()
	h := NewHealthHandler(d.Storage)

	r.Use(RequestLogger(log))

	// Health probes
	r.GET("/live", h.Liveness)
	r.GET("/ready", h.Readiness)

	api := r.Group(APIV1Prefix)
	{
		health := api.Group("/health")
		{
			health.GET("/live", h.Liveness)
			health.GET("/ready", h.Readiness)
		}
		auth := NewAuthHandler(d.Users, d.Tokens, d.TokenTTL, log)
		auth.Register(api)

		secured := api.Group("", RequireAuth(d.Tokens, d.Users))
		auth.RegisterSecured(secured)
		NewParcelHandler(d.Parcels, d.Now, log).Register(secured)
		NewUserHandler(d.Users, log).Register(secured)
	}
}
