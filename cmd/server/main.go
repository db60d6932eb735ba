// Command server is a small stand-in for the parcel backend: seeded demo data,
// in memory or in Postgres, behind the slice of the REST API the console uses.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/gvafram3/parcel-console/internal/config"
	"github.com/gvafram3/parcel-console/internal/handler"
	"github.com/gvafram3/parcel-console/internal/logger"
	"github.com/gvafram3/parcel-console/internal/repository"
	"github.com/gvafram3/parcel-console/internal/repository/memory"
	"github.com/gvafram3/parcel-console/internal/repository/postgres"
	"github.com/gvafram3/parcel-console/internal/repository/seed"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	// Load application config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config loading failed: %v", err)
	}

	if cfg.Logger.ServiceName == "" {
		cfg.Logger.ServiceName = "parcel-stub-server"
	}
	appLogger, err := logger.New(&cfg.Logger)
	if err != nil {
		log.Fatalf("logger initialization failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("storage initialization failed")
	}
	defer store.close()

	if err := seedIfEmpty(ctx, store, cfg, appLogger); err != nil {
		appLogger.Fatal().Err(err).Msg("seeding failed")
	}

	if cfg.Logger.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	handler.Register(r, handler.Deps{
		Storage: store.pinger,
		Parcels: store.parcels,
		Users:   store.users,
		Tokens:  store.tokens,
		Logger:  appLogger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		appLogger.Info().Str("addr", cfg.Server.Addr).Str("storage", cfg.Server.Storage).Msg("stub backend listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error().Err(err).Msg("graceful shutdown failed")
	}
	appLogger.Info().Msg("stub backend stopped")
}

type storage struct {
	pinger  repository.Pinger
	parcels repository.ParcelRepository
	users   repository.UserRepository
	tokens  repository.TokenRepository
	close   func()
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storage, error) {
	if cfg.Server.Storage != "postgres" {
		db := memory.New(nil)
		return storage{
			pinger:  db,
			parcels: memory.NewParcelRepository(db),
			users:   memory.NewUserRepository(db),
			tokens:  memory.NewTokenRepository(db),
			close:   db.Close,
		}, nil
	}

	pool, err := postgres.Connect(ctx, cfg.Postgres, log)
	if err != nil {
		return storage{}, err
	}
	if err := postgres.Migrate(ctx, pool, log); err != nil {
		pool.Close()
		return storage{}, err
	}
	return storage{
		pinger:  postgres.NewPinger(pool),
		parcels: postgres.NewParcelRepository(pool, nil),
		users:   postgres.NewUserRepository(pool, nil),
		tokens:  postgres.NewTokenRepository(pool, nil),
		close:   pool.Close,
	}, nil
}

// seedIfEmpty loads the demo data set unless accounts already exist, so a
// Postgres database keeps its data across restarts.
func seedIfEmpty(ctx context.Context, s storage, cfg *config.Config, log zerolog.Logger) error {
	existing, err := s.users.Search(ctx, repository.UserFilter{}, repository.PageOf(0, 1))
	if err != nil {
		return err
	}
	if existing.Total > 0 {
		log.Info().Int("users", existing.Total).Msg("storage already populated, skipping seed")
		return nil
	}
	accounts, err := seed.Run(ctx, s.users, s.parcels, seed.Options{
		Offices: cfg.Server.Offices,
		Parcels: cfg.Server.SeedParcels,
		Seed:    1,
	})
	if err != nil {
		return err
	}
	for _, a := range accounts {
		log.Info().Str("email", a.Email).Str("password", a.Password).Str("role", string(a.Role)).Str("office", a.OfficeID).Msg("seeded account")
	}
	return nil
}
