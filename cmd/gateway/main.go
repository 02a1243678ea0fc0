package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charging-platform/central-system/internal/api"
	"github.com/charging-platform/central-system/internal/business/transaction"
	"github.com/charging-platform/central-system/internal/cache"
	"github.com/charging-platform/central-system/internal/config"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/message"
	"github.com/charging-platform/central-system/internal/ocpp"
	"github.com/charging-platform/central-system/internal/storage"
	"github.com/charging-platform/central-system/internal/stream"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: time.RFC3339,
		Async:      cfg.Log.Async,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	log.Info("Starting central system gateway")

	store, err := storage.NewPostgresGateway(&storage.PostgresConfig{
		DSN:          cfg.Postgres.DSN,
		MaxOpenConns: cfg.Postgres.MaxOpenConns,
		MaxIdleConns: cfg.Postgres.MaxIdleConns,
		ConnLifetime: cfg.Postgres.ConnLifetime,
	}, log)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer store.Close()

	// The gateway keeps serving charge points when Redis is down; the
	// cache is a read-side acceleration only.
	var cacheGw cache.Gateway
	redisGw, err := cache.NewRedisGateway(cache.Config{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		log.Warnf("Redis unavailable, running without cache: %v", err)
	} else {
		cacheGw = redisGw
		defer redisGw.Close()
	}

	var publisher message.Publisher = message.NoopPublisher{}
	if cfg.Kafka.Enabled {
		producer, err := message.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.EventTopic, &message.ProducerConfig{
			RetryMax:       cfg.Kafka.Producer.RetryMax,
			FlushFrequency: cfg.Kafka.Producer.FlushFrequency,
		})
		if err != nil {
			log.Fatalf("Failed to create Kafka producer: %v", err)
		}
		publisher = producer
		defer producer.Close()
	}

	coordinator := transaction.NewCoordinator(nil, store, log)
	coordinator.Start()
	defer coordinator.Stop()

	fanout := stream.NewFanout(log)

	dispatcher := ocpp.NewDispatcher(log)
	handlers := ocpp.NewHandlers(&ocpp.HandlersConfig{
		HeartbeatInterval: cfg.OCPP.HeartbeatInterval,
		MeterQueueSize:    cfg.OCPP.MeterQueueSize,
		StorageTimeout:    5 * time.Second,
	}, store, cacheGw, coordinator, fanout, publisher, log)
	handlers.RegisterAll(dispatcher)
	defer handlers.Stop()

	registry := ocpp.NewRegistry(&ocpp.RegistryConfig{
		SweepInterval: cfg.OCPP.SweepInterval,
		Session: &ocpp.SessionConfig{
			CallTimeout:     cfg.OCPP.CallTimeout,
			SendQueueSize:   cfg.OCPP.SendQueueSize,
			WriteWait:       10 * time.Second,
			ReadLimit:       1 << 20,
			RateLimitPoints: cfg.RateLimit.Points,
			RateLimitWindow: cfg.RateLimit.Duration,
		},
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}, dispatcher, handlers, log)
	registry.Start()
	defer registry.Stop()

	commands := ocpp.NewCommands(registry, coordinator, log)
	discoverer := ocpp.NewDiscoverer(nil, log)

	wsMux := http.NewServeMux()
	wsMux.HandleFunc(cfg.Server.WebSocketPath+"/", registry.HandleWebSocket)
	wsServer := &http.Server{
		Addr:        cfg.GetServerAddr(),
		Handler:     wsMux,
		ReadTimeout: 0, // WebSocket connections are long-lived
	}

	apiServer := api.NewServer(cfg.GetAPIAddr(), store, cacheGw, registry, commands, discoverer, fanout, log)

	metricsServer := &http.Server{
		Addr:    cfg.GetMetricsAddr(),
		Handler: promhttp.Handler(),
	}

	errChan := make(chan error, 3)
	go func() {
		log.Infof("Charge point listener on %s%s", cfg.GetServerAddr(), cfg.Server.WebSocketPath)
		if cfg.Security.TLSEnabled {
			errChan <- wsServer.ListenAndServeTLS(cfg.Security.CertFile, cfg.Security.KeyFile)
			return
		}
		errChan <- wsServer.ListenAndServe()
	}()
	go func() {
		errChan <- apiServer.Start()
	}()
	go func() {
		log.Infof("Metrics listener on %s", cfg.GetMetricsAddr())
		errChan <- metricsServer.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Infof("Received signal %s, shutting down", sig)
	case err := <-errChan:
		if err != nil && err != http.ErrServerClosed {
			log.ErrorWithErr(err, "Listener failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.Warnf("WebSocket server shutdown: %v", err)
	}
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Warnf("API server shutdown: %v", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Warnf("Metrics server shutdown: %v", err)
	}

	log.Info("Shutdown complete")
}
