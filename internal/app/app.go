// Package app wires configuration into stores, buses, services and the HTTP
// server shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"masbaha/internal/cache"
	"masbaha/internal/config"
	"masbaha/internal/notify"
	"masbaha/internal/repository"
	"masbaha/internal/service"
	"masbaha/internal/transport/rest"
	"masbaha/internal/transport/ws"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

// Bus is a room event propagation channel
type Bus interface {
	service.Broadcaster
	Run(ctx context.Context) error
}

// App holds every long-lived dependency
type App struct {
	Config      *config.Config
	Store       repository.RoomStore
	Hub         *ws.Hub
	Bus         Bus
	AuthService *service.AuthService
	RoomService *service.RoomService

	closers []func()
}

// SetupLogging configures the global zerolog logger
func SetupLogging(level, format string) {
	if format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// New connects the configured backends and builds the services
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, Hub: ws.NewHub()}
	a.closers = append(a.closers, a.Hub.Stop)

	var rdb *redis.Client
	if cfg.StoreBackend == config.StoreRedis || cfg.BusBackend == config.BusRedis {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr()})
		a.closers = append(a.closers, func() { rdb.Close() })

		pingCtx, cancel := context.WithTimeout(ctx, cfg.StorageTimeout)
		defer cancel()
		if _, err := rdb.Ping(pingCtx).Result(); err != nil {
			a.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		log.Info().Str("addr", cfg.RedisAddr()).Msg("connected to Redis")
	}

	switch cfg.StoreBackend {
	case config.StoreMongo:
		db, err := a.connectMongo(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Store = repository.NewRoomRepo(db, cfg.StorageTTL)
	default:
		a.Store = cache.NewRoomCache(rdb, cfg.StorageTTL)
	}

	switch cfg.BusBackend {
	case config.BusRedis:
		a.Bus = notify.NewRedisBus(rdb, a.Hub)
	case config.BusNATS:
		natsCfg := notify.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		bus, err := notify.NewNATSBus(natsCfg, a.Hub)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Bus = bus
	default:
		a.Bus = notify.NewLocal(a.Hub)
	}

	reclaimer := &service.Reclaimer{Inactivity: cfg.InactivityWindow, Completion: cfg.CompletionWindow}
	a.AuthService = service.NewAuthService(cfg.JWTSecret)
	a.RoomService = service.NewRoomService(a.Store, reclaimer, nil)
	a.RoomService.SetStorageTimeout(cfg.StorageTimeout)
	a.RoomService.SetBroadcaster(a.Bus)

	log.Info().
		Str("store", cfg.StoreBackend).
		Str("bus", cfg.BusBackend).
		Dur("inactivity_window", cfg.InactivityWindow).
		Dur("completion_window", cfg.CompletionWindow).
		Msg("services ready")
	return a, nil
}

func (a *App) connectMongo(ctx context.Context) (*mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(a.Config.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client.Disconnect(ctx)
	})

	pingCtx, cancel := context.WithTimeout(ctx, a.Config.StorageTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(a.Config.MongoDatabase)
	if err := repository.EnsureIndexes(pingCtx, db); err != nil {
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	log.Info().Str("database", a.Config.MongoDatabase).Msg("connected to MongoDB")
	return db, nil
}

// Handler returns the HTTP API
func (a *App) Handler() http.Handler {
	return rest.NewRouter(&rest.Container{
		AuthService:    a.AuthService,
		RoomService:    a.RoomService,
		WSHub:          a.Hub,
		AllowedOrigins: a.Config.AllowedOrigins,
	})
}

// Serve runs the HTTP server and the event bus until ctx is done
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + a.Config.Port,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Bus.Run(ctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close releases connections in reverse order of acquisition
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
