package main

import (
	"context"
	"log"
	"os"

	"github.com/example/realtime-messaging/config"
	"github.com/example/realtime-messaging/modules/gateway"
	"github.com/example/realtime-messaging/modules/notification"
	"github.com/example/realtime-messaging/modules/storage"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
)

func main() {
	log.Println("=== Realtime Messaging - Fiber + WebSocket + EventBus ===")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	logger := app.Logger()

	// Create modules
	storageModule := storage.NewModule(cfg.DBPath, cfg.DBDebug, logger.WithModule("storage"))
	notificationModule := notification.NewModule(gateway.ClientOptions{
		HeartbeatInterval: cfg.HeartbeatInterval,
		SendBuffer:        cfg.SendBufferSize,
	}, logger.WithModule("notification"))
	realtimeModule := gateway.NewModule(cfg, logger.WithModule("realtime"))

	// The notification feed shares the realtime upgrade path and its single
	// authentication check. Paths must be registered before Start.
	if err := realtimeModule.Handle("/ws/notifications", notificationModule.ServeFeed); err != nil {
		log.Fatalf("Failed to register notification feed: %v", err)
	}

	// Register modules with the framework.
	// Order: independent modules first, then modules with dependencies
	// - storage: SQLite persistence (ServiceProviderModule)
	// - notification: Event consumer, notification feed (depends on storage)
	// - realtime: Fiber server, WebSocket gateway (depends on storage, emits events)
	app.Register(storageModule)
	app.Register(notificationModule)
	app.Register(realtimeModule)

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(cfg)

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(cfg *config.Config) {
	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Println("Architecture:")
	log.Println("  - HTTP Framework: Fiber with WebSocket support")
	log.Println("  - Storage: SQLite via GORM")
	log.Printf("  - Session store: Redis (%s)", cfg.RedisURL)
	log.Println("  - Event Bus: NotificationRequested -> notification module")
	log.Println("")
	log.Printf("HTTP Endpoints (http://localhost:%s):", cfg.Port)
	log.Println("  GET    /health                     - Health check")
	log.Println("  GET    /api/v1/presence/:userId    - Online status of a user")
	log.Println("  GET    /api/v1/calls/active        - Number of ringing or ongoing calls")
	log.Println("")
	log.Printf("WebSocket Endpoints (ws://localhost:%s):", cfg.Port)
	log.Printf("  /ws                  - messaging and call signaling (cookie %q required)", cfg.SessionCookie)
	log.Println("  /ws/notifications    - notification feed")
	log.Println("  Message types: message, typing, read_receipt, call_request, call_response, call_end, signal, ping")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
