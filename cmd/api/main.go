package main

import (
	"context"
	"os"
	"time"

	"parley-chat/config"
	"parley-chat/internal/commands"
	"parley-chat/internal/events"
	"parley-chat/internal/handler"
	"parley-chat/internal/metrics"
	"parley-chat/internal/proxy"
	"parley-chat/internal/redis"
	"parley-chat/internal/repository"
	"parley-chat/internal/server"
	"parley-chat/internal/services"
	"parley-chat/internal/storage"
	"parley-chat/internal/websocket"
	"parley-chat/pkg/database"
	"parley-chat/pkg/logger"
	"parley-chat/pkg/tracing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.LoadConfig()

	l := logger.New(cfg.LogMode)
	logger.SetGlobalLogger(l)
	defer l.Sync()

	ctx := context.Background()

	shutdownTracing, err := tracing.Setup(ctx, cfg.OTelEndpoint, cfg.OTelServiceName)
	if err != nil {
		l.Warnf("tracing disabled: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	srv := server.New(cfg, l)

	repo := openMessageStore(ctx, cfg, l, srv)
	graph, uploadLedger := openSocialGraph(cfg, l, srv)
	rdb := openRedis(ctx, cfg, l, srv)

	hub := websocket.NewHub(m, l.Named("websocket").Logger)

	var broadcaster events.Broadcaster = hub
	if cfg.FanoutMode == config.FanoutRedis {
		broadcaster = events.NewRedisBus(redis.NewPublisher(rdb))
		bridge := websocket.NewRedisBridge(redis.NewSubscriber(rdb), hub, l.Named("redis_bridge").Logger)
		bridgeCtx, stopBridge := context.WithCancel(context.Background())
		go func() {
			if err := bridge.Run(bridgeCtx); err != nil && bridgeCtx.Err() == nil {
				l.Errorf("redis bridge stopped: %v", err)
			}
		}()
		srv.OnShutdown(func(context.Context) { stopBridge() })
	}

	access := proxy.NewAccessControl(graph)

	deliveryOpts := []services.DeliveryOption{
		services.WithMetrics(m),
		services.WithLogger(l.Named("delivery").Logger),
		services.WithSendTimeout(cfg.SendTimeout),
	}
	if cfg.IdempotencyTTL > 0 {
		deliveryOpts = append(deliveryOpts, services.WithIdempotency(redis.NewIdempotencyCache(rdb, cfg.IdempotencyTTL)))
	}
	delivery := services.NewDeliveryService(repo, access, broadcaster, deliveryOpts...)
	signals := services.NewSignalService(access, broadcaster, l.Named("signals").Logger)

	bus := commands.NewBus(proxy.NewCommandGuard(access))
	delivery.RegisterHandlers(bus)
	signals.RegisterHandlers(bus)

	authService := services.NewAuthService(cfg)
	uploads := services.NewUploadService(openBlobStore(ctx, cfg, l), int64(cfg.MaxUploadMB)<<20)
	if uploadLedger != nil {
		uploads.WithRecords(uploadLedger)
	}

	wsHandler := websocket.NewHandler(
		authService,
		hub,
		websocket.NewRoomAuthorizer(access),
		bus,
		websocket.ClientOptions{SendBuffer: cfg.WSSendBuffer, SignalsPerSecond: cfg.WSSignalPerSecond},
		m,
		l.Named("websocket").Logger,
	)

	var presence handler.PresenceReader = hub
	routeOpts := server.RouteOptions{Gatherer: reg}
	if rdb != nil {
		store := redis.NewPresenceStore(rdb, redis.NewPublisher(rdb), 0)
		wsHandler.WithPresence(store)
		presence = store

		if cfg.MessageRateLimit > 0 {
			routeOpts.MessageLimiter = redis.NewRateLimiter(rdb, redis.RateLimitConfig{
				MessageLimit:  cfg.MessageRateLimit,
				MessageWindow: time.Minute,
			})
		}
	}

	srv.SetupRoutes(&server.Handlers{
		Messages:  handler.NewMessageHandler(bus, delivery),
		Uploads:   handler.NewUploadHandler(uploads),
		Presence:  handler.NewPresenceHandler(presence),
		WebSocket: wsHandler,
	}, authService, routeOpts)

	srv.OnShutdown(func(ctx context.Context) {
		if err := shutdownTracing(ctx); err != nil {
			l.Warnf("tracing shutdown: %v", err)
		}
	})

	if err := srv.Start(); err != nil {
		l.Errorf("server stopped with error: %v", err)
		os.Exit(1)
	}
}

func openMessageStore(ctx context.Context, cfg *config.Config, l *logger.Logger, srv *server.Server) repository.MessageRepository {
	if cfg.MessageStore == config.StoreMemory {
		l.Warnf("MESSAGE_STORE=memory: messages are lost on restart")
		return repository.NewMemoryMessageRepository()
	}

	mc, err := database.NewMongoConnection(cfg)
	if err != nil {
		l.Errorf("message store: %v", err)
		os.Exit(1)
	}
	repo := repository.NewMongoMessageRepository(mc.Database)
	if err := repo.EnsureIndexes(ctx); err != nil {
		l.Errorf("message store indexes: %v", err)
		os.Exit(1)
	}
	srv.AddHealthCheck("mongo", mc.Ping)
	srv.OnShutdown(func(ctx context.Context) { _ = mc.Close(ctx) })
	return repo
}

// openSocialGraph also returns the upload ledger, which shares the relational
// store. The ledger is nil for SOCIAL_STORE=memory.
func openSocialGraph(cfg *config.Config, l *logger.Logger, srv *server.Server) (repository.SocialGraph, repository.UploadRepository) {
	if cfg.SocialStore == config.StoreMemory {
		l.Warnf("SOCIAL_STORE=memory: nobody is a group member until fixtures are loaded")
		return repository.NewMemorySocialRepository(), nil
	}

	db, err := database.Connect(cfg)
	if err != nil {
		l.Errorf("social store: %v", err)
		os.Exit(1)
	}
	srv.AddHealthCheck(cfg.SocialStore, func(ctx context.Context) error { return database.Ping(ctx, db) })
	srv.OnShutdown(func(context.Context) { _ = database.Close(db) })
	return repository.NewGormSocialRepository(db), repository.NewGormUploadRepository(db)
}

// openRedis returns nil when nothing strictly needs Redis and it cannot be reached.
func openRedis(ctx context.Context, cfg *config.Config, l *logger.Logger, srv *server.Server) *goredis.Client {
	if !cfg.UsesRedis() {
		return nil
	}
	required := cfg.FanoutMode == config.FanoutRedis || cfg.IdempotencyTTL > 0

	rdb := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redis.Ping(ctx, rdb); err != nil {
		if required {
			l.Errorf("%v", err)
			os.Exit(1)
		}
		l.Warnf("%v; continuing without rate limiting and shared presence", err)
		_ = rdb.Close()
		return nil
	}
	srv.AddHealthCheck("redis", func(ctx context.Context) error { return redis.Ping(ctx, rdb) })
	srv.OnShutdown(func(context.Context) { _ = rdb.Close() })
	return rdb
}

func openBlobStore(ctx context.Context, cfg *config.Config, l *logger.Logger) services.BlobStore {
	if cfg.S3Bucket == "" {
		l.Warnf("S3_BUCKET is not set: uploads are disabled")
		return nil
	}
	client, err := storage.NewClient(ctx, storage.S3Config{
		Region:     cfg.S3Region,
		Bucket:     cfg.S3Bucket,
		AccessKey:  cfg.S3AccessKey,
		SecretKey:  cfg.S3SecretKey,
		Endpoint:   cfg.S3Endpoint,
		PublicBase: cfg.S3PublicBase,
	})
	if err != nil {
		l.Errorf("blob store: %v", err)
		os.Exit(1)
	}
	return client
}
