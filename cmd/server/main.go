// Command server runs the Flamewall realtime gateway: the socket endpoint
// shared by the website and the game plugins, plus its REST companion.
//
//	@title						Flamewall Realtime API
//	@version					1.0
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	_ "github.com/flamewall/realtime/docs"
	"github.com/flamewall/realtime/internal/config"
	"github.com/flamewall/realtime/internal/events"
	apphttp "github.com/flamewall/realtime/internal/http"
	"github.com/flamewall/realtime/internal/observability"
	"github.com/flamewall/realtime/internal/realtime"
	"github.com/flamewall/realtime/internal/repo"
	"github.com/flamewall/realtime/internal/services"
	"github.com/flamewall/realtime/internal/sysutil"
)

const (
	redisPrefix     = "flamewall"
	shutdownTimeout = 10 * time.Second
)

var version = "dev"

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.ConfigureLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName, observability.InstanceID)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ver := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Error().Err(err).Msg("otel shutdown failed")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			log.Warn().Err(err).Msg("gorm tracing disabled")
		}
	}

	// Redis is optional; without it dedup and presence stay process-local.
	var (
		ledger realtime.Ledger
		mirror realtime.PresenceMirror
	)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pctx).Err()
		cancel()
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable")
		}
		ledger = realtime.NewRedisLedger(rdb, redisPrefix, cfg.DedupWindow)
		mirror = realtime.NewRedisPresence(rdb, redisPrefix, 3*cfg.Socket.PingInterval)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis ledger and presence enabled")
	} else {
		mem := realtime.NewMemoryLedger(cfg.DedupWindow)
		defer mem.Close()
		ledger = mem
	}

	var sinks []events.Sink
	if cfg.NATS.URL != "" {
		nc, err := events.ConnectNATS(cfg.NATS.URL, cfg.OTEL.ServiceName)
		if err != nil {
			log.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("nats connect failed")
		}
		defer func(nc *nats.Conn) { _ = nc.Drain() }(nc)
		sinks = append(sinks, events.NewNATSSink(nc, cfg.NATS.SubjectPrefix))
		log.Info().Str("url", cfg.NATS.URL).Msg("event mirror enabled")
	}
	bus := events.NewBus(cfg.EventBuffer, sinks...)

	users := &services.UserService{DB: db}
	hub := realtime.NewHub()
	presence := realtime.NewRegistry(mirror)

	gw := realtime.NewGateway(cfg.Socket, cfg.CORS.AllowedOrigins)
	gw.Hub = hub
	gw.Presence = presence
	gw.Auth = &realtime.Authenticator{
		PluginSecret: []byte(cfg.Auth.PluginSecret),
		JWTSecret:    []byte(cfg.Auth.JWTSecret),
		Users:        users,
	}
	gw.Relay = &realtime.Relay{
		Users:    users,
		Friends:  &services.FriendshipService{DB: db, Events: bus},
		Messages: &services.MessageService{DB: db, MaxContentRunes: services.DefaultMaxContentRunes},
		Ledger:   ledger,
		Presence: presence,
		Rooms:    hub,
		Events:   bus,
	}
	gw.Linker = &services.LinkingService{DB: db, TTL: cfg.LinkCodeTTL}
	gw.Status = users

	bridge := &services.NotificationBridge{
		Store:  &services.NotificationService{DB: db},
		Events: bus,
		Push:   hub,
	}
	go bus.Run(ctx, bridge)

	r := gin.New()
	apphttp.RegisterRoutes(r, db, bus, gw, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", ver).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
