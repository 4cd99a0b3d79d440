package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"janasamparka/config"
	"janasamparka/internal/handler"
	"janasamparka/internal/messaging"
	"janasamparka/internal/middleware"
	"janasamparka/internal/repository"
	"janasamparka/internal/service"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config/config.json", "path to JSON or YAML config")
	flag.Parse()

	log.Println("==============================================")
	log.Println("  JANASAMPARKA - Starting Up")
	log.Println("  Workflow, routing, priority, clustering")
	log.Println("==============================================")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("✓ Connected to database")

	rmq, err := messaging.NewRabbitMQ(cfg.RabbitMQ.URL())
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer rmq.Close()
	log.Println("✓ Connected to RabbitMQ (with DLQ configuration)")

	// Repositories
	outboxRepo := repository.NewOutboxRepository(db)
	complaintRepo := repository.NewComplaintRepository(db, outboxRepo)
	jurisdictionRepo := repository.NewJurisdictionRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// Services
	priorityService := service.NewPriorityService(complaintRepo, cfg.Priority.DuplicateRadiusMeters)
	routingService := service.NewRoutingService(jurisdictionRepo)
	complaintService := service.NewComplaintService(complaintRepo, routingService, priorityService)
	clusteringService := service.NewClusteringService(complaintRepo)
	clusteringService.SetDefaults(cfg.Clustering.RadiusMeters, cfg.Clustering.MinClusterSize)

	sseHub := messaging.NewSSEHub()
	notificationService := service.NewNotificationService(notificationRepo, sseHub)

	outboxWorker := messaging.NewOutboxWorker(outboxRepo, rmq)
	consumer := messaging.NewNotificationConsumer(rmq, notificationRepo, sseHub)

	// Handlers
	complaintHandler := handler.NewComplaintHandler(complaintService, priorityService)
	clusterHandler := handler.NewClusterHandler(clusteringService)
	notificationHandler := handler.NewNotificationHandler(notificationService)
	healthHandler := handler.NewHealthHandler(outboxWorker, rmq)

	r := gin.Default()

	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.GET("/notifications/stream", middleware.StreamAuth(cfg.JWT.Secret), notificationHandler.StreamNotifications)

	protected := api.Group("", middleware.Auth(cfg.JWT.Secret))
	complaintHandler.Register(protected)
	clusterHandler.Register(protected)
	notificationHandler.Register(protected)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sseHub.Run(gctx) })
	g.Go(func() error { return outboxWorker.Run(gctx) })
	g.Go(func() error { return consumer.Run(gctx) })
	g.Go(func() error {
		log.Println("==============================================")
		log.Printf("  Janasamparka listening on %s", srv.Addr)
		log.Println("==============================================")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutdown signal received...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("Stopped with error: %v", err)
		return
	}
	log.Println("Janasamparka stopped gracefully")
}
