package gateway

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

const localsUserID = "userID"

// Dispatcher errors
var (
	ErrAlreadySetup  = errors.New("dispatcher already set up")
	ErrDuplicatePath = errors.New("realtime path already registered")
)

// Authenticator resolves a raw session cookie to a user id.
type Authenticator interface {
	Authenticate(ctx context.Context, rawCookie string) (int64, error)
}

// RealtimeHandler serves one authenticated WebSocket connection. It owns the
// connection until it returns.
type RealtimeHandler func(userID int64, conn *websocket.Conn)

// Dispatcher owns the single upgrade path into the service. Every realtime
// feature registers a path; one middleware authenticates each upgrade once and
// routes it to the feature registered for that path.
type Dispatcher struct {
	cookieName string
	origins    []string
	logger     types.Logger

	mu     sync.Mutex
	routes map[string]RealtimeHandler
	auth   Authenticator
	ready  bool
	once   sync.Once
}

// NewDispatcher creates a dispatcher reading the session from cookieName.
// Upgrades are accepted only from pages served by one of origins; an empty
// list or "*" allows any origin.
func NewDispatcher(cookieName string, origins []string, logger types.Logger) *Dispatcher {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Dispatcher{
		cookieName: cookieName,
		origins:    origins,
		logger:     logger,
		routes:     make(map[string]RealtimeHandler),
	}
}

// routeKey folds path the way Fiber's default router matches it: case
// insensitive and ignoring a trailing slash.
func routeKey(path string) string {
	key := utils.TrimRight(strings.ToLower(path), '/')
	if key == "" {
		return "/"
	}
	return key
}

// Handle registers handler for upgrades on path. It must be called before Setup.
func (d *Dispatcher) Handle(path string, handler RealtimeHandler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ready {
		return ErrAlreadySetup
	}
	key := routeKey(path)
	if _, ok := d.routes[key]; ok {
		return ErrDuplicatePath
	}
	d.routes[key] = handler
	return nil
}

// Setup installs the upgrade middleware and one route per registered path.
// Only the first call has any effect; it reports whether this call installed.
func (d *Dispatcher) Setup(app *fiber.App, auth Authenticator) bool {
	installed := false
	d.once.Do(func() {
		d.mu.Lock()
		d.ready = true
		d.auth = auth
		paths := make([]string, 0, len(d.routes))
		for p := range d.routes {
			paths = append(paths, p)
		}
		d.mu.Unlock()
		sort.Strings(paths)

		wsConfig := websocket.Config{Origins: d.origins}
		app.Use(d.upgradeMiddleware)
		for _, path := range paths {
			handler := d.routes[path]
			app.Get(path, requireUser, websocket.New(func(c *websocket.Conn) {
				userID, ok := c.Locals(localsUserID).(int64)
				if !ok || userID <= 0 {
					d.logger.Error("Realtime connection without user, closing", "path", path)
					_ = c.Close()
					return
				}
				handler(userID, c)
			}, wsConfig))
		}

		d.logger.Info("Realtime dispatcher installed", "paths", paths)
		installed = true
	})
	return installed
}

// allowedOrigin reports whether a page served from origin may open a
// realtime connection.
func (d *Dispatcher) allowedOrigin(origin string) bool {
	for _, o := range d.origins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (d *Dispatcher) registered(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.routes[routeKey(path)]
	return ok
}

// requireUser refuses an upgrade that reached a realtime route without
// passing authentication.
func requireUser(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	if userID, ok := c.Locals(localsUserID).(int64); !ok || userID <= 0 {
		c.Context().SetConnectionClose()
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "unauthorized",
		})
	}
	return c.Next()
}

// upgradeMiddleware authenticates WebSocket upgrades on registered paths.
// Other requests pass through untouched.
func (d *Dispatcher) upgradeMiddleware(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) || !d.registered(c.Path()) {
		return c.Next()
	}

	if origin := c.Get(fiber.HeaderOrigin); !d.allowedOrigin(origin) {
		d.logger.Warn("Rejected realtime upgrade", "path", c.Path(), "ip", c.IP(), "origin", origin)
		c.Context().SetConnectionClose()
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "origin not allowed",
		})
	}

	userID, err := d.auth.Authenticate(c.UserContext(), c.Cookies(d.cookieName))
	if err != nil {
		d.logger.Warn("Rejected realtime upgrade", "path", c.Path(), "ip", c.IP(), "reason", err.Error())
		c.Context().SetConnectionClose()
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "unauthorized",
		})
	}

	c.Locals(localsUserID, userID)
	return c.Next()
}
