package gateway

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}

// PresenceResponse is the body of GET /api/v1/presence/:userId.
type PresenceResponse struct {
	UserID      int64 `json:"userId"`
	Online      bool  `json:"online"`
	Connections int   `json:"connections"`
}

// ActiveCallsResponse is the body of GET /api/v1/calls/active.
type ActiveCallsResponse struct {
	ActiveCalls int `json:"activeCalls"`
}

// ErrorResponse is the HTTP error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// registerRoutes configures the plain HTTP routes.
func (m *Module) registerRoutes() {
	m.app.Get("/health", m.healthHandler)

	api := m.app.Group("/api/v1")
	api.Get("/presence/:userId", m.presenceHandler)
	api.Get("/calls/active", m.activeCallsHandler)
}

// healthHandler handles GET /health.
func (m *Module) healthHandler(c *fiber.Ctx) error {
	status := m.Health(c.UserContext())
	return c.JSON(HealthResponse{
		Status:  "healthy",
		Details: status.Details,
	})
}

// presenceHandler handles GET /api/v1/presence/:userId.
func (m *Module) presenceHandler(c *fiber.Ctx) error {
	userID, err := strconv.ParseInt(c.Params("userId"), 10, 64)
	if err != nil || userID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   CodeValidation,
			Message: "userId must be a positive integer",
		})
	}

	return c.JSON(PresenceResponse{
		UserID:      userID,
		Online:      m.registry.IsOnline(userID),
		Connections: m.registry.ConnectionCount(userID),
	})
}

// activeCallsHandler handles GET /api/v1/calls/active.
func (m *Module) activeCallsHandler(c *fiber.Ctx) error {
	count := 0
	if m.calls != nil {
		count = m.calls.ActiveCount()
	}
	return c.JSON(ActiveCallsResponse{ActiveCalls: count})
}
