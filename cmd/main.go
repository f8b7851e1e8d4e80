package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/akylbek/payment-system/pg-orchestrator/internal/api"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/config"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/events"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/gateway"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/interfaces"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/models"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/provider"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/repository"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/service"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/telemetry"
	"github.com/akylbek/payment-system/pg-orchestrator/internal/txstore"
)

const serviceName = "pg-orchestrator"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize telemetry
	if err := telemetry.InitTelemetry(serviceName, cfg.JaegerEndpoint); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting PG Orchestrator",
		zap.Int("providers", len(cfg.Providers)),
		zap.String("tx_store", cfg.TxStore),
	)

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := repository.InitDB(db); err != nil {
		telemetry.Logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	store, locker, closeStore := newTransactionStore(cfg)
	defer closeStore()

	publisher, closeEvents := newPublisher(cfg)
	defer closeEvents()

	gateways := gateway.NewSet(
		gateway.Instrument(gateway.NewInicisClient(cfg.GatewayTimeout)),
		gateway.Instrument(gateway.NewTossClient(cfg.GatewayTimeout)),
	)

	orchestrator := service.NewOrchestrator(service.Dependencies{
		Registry:  provider.NewRegistry(cfg.Providers),
		Gateways:  gateways,
		Store:     store,
		Locker:    locker,
		Orders:    repository.NewOrderRepository(db),
		Payments:  repository.NewPaymentRepository(db),
		Requests:  repository.NewPaymentRequestRepository(db),
		Points:    repository.NewPointsRepository(db),
		Publisher: publisher,
	}, service.Options{
		MinimumAmount: cfg.MinimumAmount,
		ReturnURL:     cfg.ReturnURL,
		CloseURL:      cfg.CloseURL,
	})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if cfg.KafkaBrokers != "" {
		reader := events.NewKafkaReader(strings.Split(cfg.KafkaBrokers, ","), cfg.CancelRequestsTopic, serviceName)
		consumer := events.NewCancelConsumer(reader, func(ctx context.Context, req models.CancelRequest) error {
			_, err := orchestrator.Cancel(ctx, req)
			return err
		})
		go consumer.Run(ctx)
	}

	// gRPC health service for orchestration probes
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)

	go func() {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			telemetry.Logger.Fatal("Failed to listen for gRPC", zap.Error(err))
		}
		telemetry.Logger.Info("gRPC health server starting", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			telemetry.Logger.Error("gRPC server stopped", zap.Error(err))
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewRouter(orchestrator, cfg.AllowedOrigins),
	}

	// Start server in goroutine
	go func() {
		telemetry.Logger.Info("PG Orchestrator starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	stop()
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()

	telemetry.Logger.Info("Server exited")
}

// newTransactionStore returns the in-flight transaction store and the matching
// per-tid locker.
func newTransactionStore(cfg *config.Config) (interfaces.TransactionStore, interfaces.Locker, func()) {
	if cfg.TxStore != "redis" {
		return txstore.NewMemoryStore(), txstore.NewMemoryLocker(), func() {}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		telemetry.Logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	return txstore.NewRedisStore(redisClient, cfg.TxTTL), txstore.NewRedisLocker(redisClient), func() {
		redisClient.Close()
	}
}

// newPublisher fans state events out to Kafka and NATS. Either sink is
// skipped when it is not configured.
func newPublisher(cfg *config.Config) (interfaces.EventPublisher, func()) {
	var sinks events.Multi
	var closers []func()

	if cfg.KafkaBrokers != "" {
		kafkaWriter := &kafka.Writer{
			Addr:     kafka.TCP(strings.Split(cfg.KafkaBrokers, ",")...),
			Topic:    cfg.EventsTopic,
			Balancer: &kafka.LeastBytes{},
		}
		sinks = append(sinks, events.NewKafkaPublisher(kafkaWriter))
		closers = append(closers, func() { kafkaWriter.Close() })
	}

	if cfg.NatsURL != "" {
		nc, err := nats.Connect(cfg.NatsURL)
		if err != nil {
			telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		sinks = append(sinks, events.NewNATSPublisher(nc))
		closers = append(closers, nc.Close)
	}

	if len(sinks) == 0 {
		telemetry.Logger.Warn("No event sinks configured, state events are dropped")
		return events.Nop{}, func() {}
	}

	return events.Logged{Next: sinks}, func() {
		for _, c := range closers {
			c()
		}
	}
}
