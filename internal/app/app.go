package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomwire/internal/auth"
	"github.com/vovakirdan/roomwire/internal/bus"
	"github.com/vovakirdan/roomwire/internal/config"
	"github.com/vovakirdan/roomwire/internal/core"
	"github.com/vovakirdan/roomwire/internal/presence"
	"github.com/vovakirdan/roomwire/internal/rooms"
	"github.com/vovakirdan/roomwire/internal/store"
	"github.com/vovakirdan/roomwire/internal/store/postgres"
	"github.com/vovakirdan/roomwire/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/roomwire/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	bus             bus.Bus
	log             *zerolog.Logger
}

// OpenStore opens the configured database and applies pending migrations.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		st, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.DriverSQLite:
		st, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DatabaseDriver)
	}
}

// OpenBus connects the configured user-deleted notification bus.
func OpenBus(cfg *config.Config, logger *zerolog.Logger) (bus.Bus, error) {
	switch cfg.BusDriver {
	case config.BusNATS:
		b, err := bus.NewNATS(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.BusLocal:
		return bus.NewLocal(), nil
	default:
		return nil, fmt.Errorf("unknown bus driver %q", cfg.BusDriver)
	}
}

// JWTConfig derives token settings from configuration.
func JWTConfig(cfg *config.Config) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("driver", cfg.DatabaseDriver).Msg("database initialized")

	roomSvc := rooms.NewService(st, logger)
	if err := roomSvc.Bootstrap(ctx, cfg.SeedRooms); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("bootstrap rooms: %w", err)
	}

	b, err := OpenBus(cfg, logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init bus: %w", err)
	}

	hub := core.NewHub(roomSvc, st, presence.NewRegistry(), core.Options{
		HistoryLimit:    cfg.HistoryLimit,
		MaxMessageBytes: cfg.MaxMessageBytes,
	}, logger)

	if err := b.SubscribeUserDeleted(hub.UserDeleted); err != nil {
		_ = b.Close()
		_ = st.Close()
		return nil, fmt.Errorf("subscribe user deleted: %w", err)
	}

	authService := auth.NewService(st, JWTConfig(cfg))
	authService.OnRegister(func(ctx context.Context, user *store.User) error {
		msg, err := roomSvc.AddToGeneral(ctx, user)
		if err != nil {
			return err
		}
		if msg != nil {
			hub.Broadcast(msg)
		}
		return nil
	})

	server := transporthttp.NewServer(transporthttp.Deps{
		Hub:           hub,
		Auth:          authService,
		Authenticator: auth.NewAuthenticator(authService, cfg.CookieName, []byte(cfg.CookieSecret)),
		Rooms:         roomSvc,
		Store:         st,
		Bus:           b,
	}, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		bus:             b,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go a.hub.Run(hubCtx)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the bus, the database and other resources.
func (a *App) cleanup() {
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close bus")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
