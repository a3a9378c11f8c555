// Package gateway is the realtime entry point: it serves the Fiber app,
// authenticates WebSocket upgrades and routes client frames to the
// messaging and call services.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/realtime-messaging/config"
	"github.com/example/realtime-messaging/events"
	"github.com/example/realtime-messaging/modules/auth"
	"github.com/example/realtime-messaging/modules/calls"
	"github.com/example/realtime-messaging/modules/messaging"
	"github.com/example/realtime-messaging/modules/registry"
	"github.com/example/realtime-messaging/modules/storage"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
)

// Module implements the realtime gateway module.
type Module struct {
	cfg    *config.Config
	app    *fiber.App
	logger types.Logger

	dispatcher *Dispatcher
	registry   *registry.Registry
	router     *Router
	calls      *calls.Manager
	redis      *redis.Client
	store      storage.Port

	busMu    sync.RWMutex
	eventBus mono.EventBus

	ctx    context.Context
	cancel context.CancelFunc
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.DependentModule       = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new gateway module.
func NewModule(cfg *config.Config, moduleLogger types.Logger) *Module {
	m := &Module{
		cfg:        cfg,
		logger:     moduleLogger,
		dispatcher: NewDispatcher(cfg.SessionCookie, cfg.AllowedOrigins(), moduleLogger),
		registry:   registry.New(moduleLogger),
	}
	registry.NewPresence(m.registry, moduleLogger)
	if err := m.dispatcher.Handle("/ws", m.serveMessaging); err != nil {
		panic(err)
	}
	return m
}

// Name returns the module name.
func (m *Module) Name() string {
	return "realtime"
}

// Dependencies returns the list of module dependencies.
func (m *Module) Dependencies() []string {
	return []string{"storage"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *Module) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "storage":
		m.store = storage.NewAdapter(container)
	}
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.busMu.Lock()
	defer m.busMu.Unlock()
	m.eventBus = bus
}

func (m *Module) bus() mono.EventBus {
	m.busMu.RLock()
	defer m.busMu.RUnlock()
	return m.eventBus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.NotificationRequestedV1.ToBase(),
	}
}

// Handle registers another realtime feature behind the shared upgrade
// authentication. It must be called before Start.
func (m *Module) Handle(path string, handler RealtimeHandler) error {
	return m.dispatcher.Handle(path, handler)
}

// Registry returns the connection registry of the messaging endpoint.
func (m *Module) Registry() *registry.Registry {
	return m.registry
}

// Start wires the services and starts the HTTP server.
func (m *Module) Start(_ context.Context) error {
	if m.store == nil {
		return fmt.Errorf("storage dependency not set")
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())

	authenticator, err := m.newAuthenticator()
	if err != nil {
		return err
	}

	notifier := &eventNotifier{bus: m.bus, logger: m.logger}
	messages := messaging.NewService(m.store, m.store, m.registry, notifier, m.logger)
	m.calls = calls.NewManager(m.store, m.store, m.registry, notifier, m.logger,
		calls.WithTimeout(m.cfg.CallTimeout),
	)
	m.router = NewRouter(messages, m.calls, m.logger)
	m.registry.OnTransition(m.hangupWhenOffline)

	m.app = fiber.New(fiber.Config{
		AppName:               "Realtime Messaging",
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
	})

	m.app.Use(recover.New())
	m.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} ${method} ${path} ${latency}\n",
	}))
	m.app.Use(cors.New(cors.Config{
		AllowOrigins:     m.cfg.CORSAllowedOrigins,
		AllowMethods:     "GET,OPTIONS",
		AllowHeaders:     "Content-Type",
		AllowCredentials: true,
	}))

	m.dispatcher.Setup(m.app, authenticator)
	m.registerRoutes()

	addr := ":" + m.cfg.Port
	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(addr); err != nil {
			errCh <- err
		}
	}()

	// Wait briefly to catch immediate startup errors
	select {
	case err := <-errCh:
		return fmt.Errorf("realtime server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("Realtime server started", "addr", addr)
	return nil
}

// newAuthenticator connects to the Redis session store.
func (m *Module) newAuthenticator() (*auth.Authenticator, error) {
	opts, err := redis.ParseURL(m.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	if m.cfg.RedisDB != 0 {
		opts.DB = m.cfg.RedisDB
	}
	m.redis = redis.NewClient(opts)

	store := auth.NewRedisSessionStore(m.redis, m.cfg.SessionKeyPrefix)
	pingCtx, cancel := context.WithTimeout(m.ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to connect to session store: %w", err)
	}

	return auth.NewAuthenticator(store, m.cfg.SessionSecrets, m.logger)
}

// hangupWhenOffline ends the calls of a user who lost their last connection,
// unless they reconnect before the cleanup runs.
func (m *Module) hangupWhenOffline(userID int64, online bool) {
	if online {
		return
	}
	go func() {
		if m.registry.IsOnline(userID) {
			return
		}
		m.calls.HangupUser(m.ctx, userID)
	}()
}

// serveMessaging runs one authenticated connection on the messaging endpoint.
func (m *Module) serveMessaging(userID int64, conn *websocket.Conn) {
	client := NewClient(conn, userID, m.clientOptions(), m.logger)
	limiter := newRateLimiter(burstSize, messagesPerSecond)

	m.registry.Add(userID, client)
	defer m.registry.Remove(userID, client)

	m.logger.Info("WebSocket connected", "userID", userID, "connID", client.ID())

	if frame, err := registry.Encode(registry.EventConnectionStatus, ConnectionStatus{
		UserID:       userID,
		ConnectionID: client.ID(),
		Connected:    true,
		OnlineUsers:  m.registry.OnlineUserIDs(),
	}); err == nil {
		client.Send(frame)
	}

	client.Run(func(frame []byte) {
		m.router.Dispatch(m.ctx, client, userID, limiter, frame)
	})

	m.logger.Info("WebSocket disconnected", "userID", userID, "connID", client.ID())
}

func (m *Module) clientOptions() ClientOptions {
	return ClientOptions{
		HeartbeatInterval: m.cfg.HeartbeatInterval,
		SendBuffer:        m.cfg.SendBufferSize,
	}
}

// Stop closes every connection, cancels ring timers and shuts the server down.
func (m *Module) Stop(ctx context.Context) error {
	m.registry.CloseAll()
	if m.calls != nil {
		m.calls.Close()
	}
	if m.cancel != nil {
		m.cancel()
	}

	if m.app != nil {
		if err := m.app.ShutdownWithContext(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	if m.redis != nil {
		if err := m.redis.Close(); err != nil {
			m.logger.Warn("Failed to close session store", "error", err)
		}
	}

	m.logger.Info("Realtime server stopped")
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	activeCalls := 0
	if m.calls != nil {
		activeCalls = m.calls.ActiveCount()
	}
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: map[string]any{
			"online_users": m.registry.UserCount(),
			"connections":  m.registry.TotalConnections(),
			"active_calls": activeCalls,
		},
	}
}

// errorHandler handles errors globally.
func (m *Module) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	if code >= fiber.StatusInternalServerError {
		m.logger.Error("HTTP error", "code", code, "message", message, "error", err)
	}

	return c.Status(code).JSON(fiber.Map{
		"error": message,
	})
}
