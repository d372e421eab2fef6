package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkout-svc/circuitbreaker"
	"checkout-svc/config"
	"checkout-svc/gateway"
	checkoutgrpc "checkout-svc/grpc"
	"checkout-svc/handlers"
	"checkout-svc/kafka"
	"checkout-svc/middleware"
	"checkout-svc/notification"
	"checkout-svc/service"
	"checkout-svc/store"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run wires and serves the checkout service until a signal arrives. Every
// deferred cleanup has run by the time it returns the process exit code.
func run(args []string) int {
	flags := flag.NewFlagSet("checkout-svc", flag.ContinueOnError)
	healthcheck := flags.Bool("healthcheck", false, "check the running service's gRPC health endpoint and exit")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Printf("Failed to initialize logger: %v", err)
		return 1
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", zap.Error(err))
		return 1
	}

	if *healthcheck {
		return checkHealth(cfg, logger)
	}

	// Initialize OpenTelemetry
	shutdownTracing, err := middleware.InitTracing("checkout-service", cfg.JaegerEndpoint)
	if err != nil {
		logger.Error("Failed to initialize tracing", zap.Error(err))
		return 1
	}

	orderStore := store.NewMemoryStore()

	breaker := circuitbreaker.NewCircuitBreaker(
		cfg.BreakerMaxFailures,
		cfg.BreakerResetTimeout,
		circuitbreaker.WithFailureFilter(gateway.IsUpstreamFailure),
	)
	razorpay := gateway.NewRazorpayClient(
		cfg.RazorpayBaseURL,
		cfg.RazorpayKeyID,
		cfg.RazorpayKeySecret,
		cfg.GatewayTimeout,
		breaker,
		logger,
	)

	transport, err := notification.NewTransport(cfg.Email, logger)
	if err != nil {
		logger.Error("Failed to initialize email transport", zap.Error(err))
		shutdownTracing()
		return 1
	}
	if smtp, ok := transport.(*notification.SMTPTransport); ok {
		verifyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := smtp.Verify(verifyCtx); err != nil {
			logger.Warn("Email configuration error", zap.Error(err))
		} else {
			logger.Info("Email server is ready to send messages")
		}
		cancel()
	}
	dispatcher := notification.NewDispatcher(transport, cfg.Email.Sender(), logger)

	var publisher kafka.Publisher = kafka.NoopPublisher{}
	if cfg.KafkaEnabled {
		producer, err := kafka.InitProducer([]string{cfg.KafkaBroker}, logger)
		if err != nil {
			logger.Error("Failed to initialize Kafka producer", zap.Error(err))
			shutdownTracing()
			return 1
		}
		defer producer.Close()
		publisher = kafka.NewSaramaPublisher(producer, cfg.KafkaTopic, logger)
	}

	orderService := service.NewOrderService(
		orderStore,
		razorpay,
		dispatcher,
		publisher,
		cfg.RazorpayKeyID,
		cfg.RazorpayKeySecret,
		logger,
	)
	middleware.RegisterOrderGauge(orderStore.Len)

	logConfigStatus(cfg, logger)

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	// OpenTelemetry middleware must be first to extract trace context
	router.Use(otelgin.Middleware("checkout-service"))
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", middleware.PrometheusHandler())

	orderHandler := handlers.NewOrderHandler(orderService, logger)
	api := router.Group("/api")
	api.POST("/create-order", orderHandler.CreateOrder)
	api.POST("/verify-payment", orderHandler.VerifyPayment)
	api.POST("/send-tracking", orderHandler.SendTracking)
	api.GET("/order/:orderId", orderHandler.GetOrder)

	restSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Error("Failed to listen on gRPC port", zap.Error(err))
		shutdownTracing()
		return 1
	}
	healthServer := checkoutgrpc.NewHealthServer(orderService.Ready, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Checkout Service REST API started", zap.String("addr", restSrv.Addr))
		if err := restSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return healthServer.Serve(grpcListener)
	})
	g.Go(func() error {
		<-gctx.Done()
		gracefulShutdown(restSrv, healthServer, shutdownTracing, logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Checkout Service stopped with error", zap.Error(err))
		return 1
	}
	return 0
}

// gracefulShutdown stops both servers and flushes traces.
func gracefulShutdown(
	restSrv *http.Server,
	healthServer *checkoutgrpc.HealthServer,
	shutdownTracing func(),
	logger *zap.Logger,
) {
	logger.Info("Shutdown signal received. Exiting...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := restSrv.Shutdown(ctx); err != nil {
		logger.Error("REST server forced to shutdown", zap.Error(err))
	} else {
		logger.Info("REST server stopped gracefully")
	}

	healthServer.GracefulStop()
	logger.Info("gRPC server stopped gracefully")

	shutdownTracing()
	logger.Info("Checkout Service exited gracefully")
}

func logConfigStatus(cfg *config.Config, logger *zap.Logger) {
	logger.Info("Configuration status",
		zap.String("port", cfg.Port),
		zap.Bool("razorpay_key_id", cfg.RazorpayKeyID != ""),
		zap.Bool("razorpay_key_secret", cfg.RazorpayKeySecret != ""),
		zap.Bool("email", cfg.Email.Configured()),
		zap.Bool("kafka", cfg.KafkaEnabled),
	)
	if !cfg.GatewayConfigured() {
		logger.Warn("Razorpay keys are missing. Payment functionality will not work without RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET.")
	}
}

// checkHealth returns 0 when the local gRPC health endpoint reports SERVING.
func checkHealth(cfg *config.Config, logger *zap.Logger) int {
	addr := cfg.GRPCAddr
	if host, port, err := net.SplitHostPort(addr); err == nil && host == "" {
		addr = net.JoinHostPort("localhost", port)
	}

	client, err := checkoutgrpc.NewHealthClient(addr, logger)
	if err != nil {
		logger.Error("Health check failed", zap.Error(err))
		return 1
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	serving, err := client.Check(ctx, checkoutgrpc.ServiceName)
	if err != nil || !serving {
		return 1
	}
	return 0
}
