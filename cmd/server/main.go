package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/watchroom/server/internal/adapters/http"
	signaladapter "github.com/watchroom/server/internal/adapters/signal"
	"github.com/watchroom/server/internal/app"
	"github.com/watchroom/server/internal/auth"
	"github.com/watchroom/server/internal/cache"
	"github.com/watchroom/server/internal/config"
	"github.com/watchroom/server/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	mongoClient, err := store.Connect(ctx, cfg.MongoURI)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mongo")
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.Error().Err(err).Msg("mongo disconnect")
		}
	}()
	db := mongoClient.Database(cfg.MongoDB)
	if err := store.EnsureIndexes(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure indexes")
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()

	roomStore := store.NewRoomStore(db)
	userStore := store.NewUserStore(db)
	roomCache := cache.NewRooms(redisClient, cfg.CacheReadTimeout)
	userCache := cache.NewUsers(redisClient, cfg.CacheReadTimeout)

	resolver := auth.NewResolver(cfg.TokenSecret, cfg.TokenTTL)
	reader := &app.RoomReader{Store: roomStore, Cache: roomCache}
	admins := app.NewAdminCache(reader)
	registry := app.NewRegistry(userStore, userCache)

	ids, err := app.NewRoomIDGenerator(roomCache)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init room id generator")
	}

	lifecycle := &app.Lifecycle{
		Store:  roomStore,
		Users:  userStore,
		Cache:  roomCache,
		Rooms:  reader,
		Admins: admins,
		Relay:  app.NewSFUClient(cfg.SFUServerURL, cfg.SFUServerSecret),
		IDs:    ids,
	}

	ctl := &signaladapter.Controller{
		Auth:       resolver,
		Registry:   registry,
		Admins:     admins,
		Lifecycle:  lifecycle,
		Rooms:      reader,
		Users:      userStore,
		UserCache:  userCache,
		Pending:    app.NewPending(),
		Chat:       signaladapter.NewRateLimiter(cfg.ChatRateLimit, cfg.ChatRateWindow),
		AckTimeout: cfg.AckTimeout,
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
	}

	sweeper := &app.GuestSweeper{
		Users:     userStore,
		UserCache: userCache,
		Lifecycle: lifecycle,
		Notifier:  ctl,
		TTL:       cfg.GuestTTL,
		Period:    cfg.GuestSweepPeriod,
		Grace:     cfg.GuestGracePeriod,
	}
	go sweeper.Run(ctx)

	rooms := &router.RoomHandlers{
		Lifecycle: lifecycle,
		Rooms:     reader,
		Video:     app.NewOEmbedLookup(),
	}
	accounts := &router.AuthHandlers{
		Users: userStore,
		Cache: userCache,
		Auth:  resolver,
		TTL:   cfg.TokenTTL,
	}

	r := router.SetupRouter(ctx, cfg, resolver, accounts, rooms, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("watchroom server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
