package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// mockAuthenticator maps cookie values to user ids.
type mockAuthenticator struct {
	users map[string]int64
	calls atomic.Int32
}

func (a *mockAuthenticator) Authenticate(_ context.Context, rawCookie string) (int64, error) {
	a.calls.Add(1)
	if id, ok := a.users[rawCookie]; ok {
		return id, nil
	}
	return 0, errors.New("no session")
}

const testOrigin = "http://localhost:3000"

func noopHandler(_ int64, _ *websocket.Conn) {}

// newMiddlewareApp mounts only the upgrade middleware in front of a plain
// handler that echoes the authenticated user id.
func newMiddlewareApp(t *testing.T, auth Authenticator) *fiber.App {
	t.Helper()

	d := NewDispatcher("connect.sid", []string{testOrigin}, newMockLogger())
	if err := d.Handle("/ws", noopHandler); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	d.auth = auth

	app := fiber.New()
	app.Use(d.upgradeMiddleware)
	echo := func(c *fiber.Ctx) error {
		userID, _ := c.Locals(localsUserID).(int64)
		return c.JSON(fiber.Map{"userId": userID})
	}
	app.Get("/ws", echo)
	app.Get("/other", echo)
	return app
}

func upgradeRequest(path, cookie string) *http.Request {
	req := httptest.NewRequest("GET", path, nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Origin", testOrigin)
	if cookie != "" {
		req.Header.Set("Cookie", "connect.sid="+cookie)
	}
	return req
}

func withOrigin(req *http.Request, origin string) *http.Request {
	req.Header.Set("Origin", origin)
	return req
}

func decodeUserID(t *testing.T, body io.Reader) int64 {
	t.Helper()
	var out struct {
		UserID int64 `json:"userId"`
	}
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return out.UserID
}

func TestDispatcher_UpgradeMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		req        *http.Request
		wantStatus int
		wantUserID int64
		wantCalls  int32
	}{
		{
			name:       "valid session",
			req:        upgradeRequest("/ws", "good"),
			wantStatus: fiber.StatusOK,
			wantUserID: 42,
			wantCalls:  1,
		},
		{
			name:       "missing cookie",
			req:        upgradeRequest("/ws", ""),
			wantStatus: fiber.StatusUnauthorized,
			wantCalls:  1,
		},
		{
			name:       "unknown session",
			req:        upgradeRequest("/ws", "forged"),
			wantStatus: fiber.StatusUnauthorized,
			wantCalls:  1,
		},
		{
			name:       "trailing slash",
			req:        upgradeRequest("/ws/", ""),
			wantStatus: fiber.StatusUnauthorized,
			wantCalls:  1,
		},
		{
			name:       "upper case path",
			req:        upgradeRequest("/WS", "good"),
			wantStatus: fiber.StatusOK,
			wantUserID: 42,
			wantCalls:  1,
		},
		{
			name:       "foreign origin",
			req:        withOrigin(upgradeRequest("/ws", "good"), "https://evil.example"),
			wantStatus: fiber.StatusForbidden,
			wantCalls:  0,
		},
		{
			name:       "missing origin",
			req:        withOrigin(upgradeRequest("/ws", "good"), ""),
			wantStatus: fiber.StatusForbidden,
			wantCalls:  0,
		},
		{
			name:       "plain request passes through",
			req:        httptest.NewRequest("GET", "/ws", nil),
			wantStatus: fiber.StatusOK,
			wantCalls:  0,
		},
		{
			name:       "unregistered path passes through",
			req:        upgradeRequest("/other", "good"),
			wantStatus: fiber.StatusOK,
			wantCalls:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &mockAuthenticator{users: map[string]int64{"good": 42}}
			app := newMiddlewareApp(t, auth)

			resp, err := app.Test(tt.req, -1)
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if got := auth.calls.Load(); got != tt.wantCalls {
				t.Errorf("Authenticate() calls = %d, want %d", got, tt.wantCalls)
			}
			if tt.wantStatus == fiber.StatusOK {
				if got := decodeUserID(t, resp.Body); got != tt.wantUserID {
					t.Errorf("userId = %d, want %d", got, tt.wantUserID)
				}
			}
		})
	}
}

func TestDispatcher_SetupIsIdempotent(t *testing.T) {
	d := NewDispatcher("connect.sid", nil, newMockLogger())
	if err := d.Handle("/ws", noopHandler); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if err := d.Handle("/ws/notifications", noopHandler); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	app := fiber.New()
	auth := &mockAuthenticator{}

	if !d.Setup(app, auth) {
		t.Fatal("first Setup() = false, want true")
	}
	handlers := app.HandlersCount()

	if d.Setup(app, auth) {
		t.Error("second Setup() = true, want false")
	}
	if got := app.HandlersCount(); got != handlers {
		t.Errorf("HandlersCount() after second Setup = %d, want %d", got, handlers)
	}
}

func TestDispatcher_Handle(t *testing.T) {
	d := NewDispatcher("connect.sid", nil, newMockLogger())

	if err := d.Handle("/ws", noopHandler); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	for _, path := range []string{"/ws", "/ws/", "/WS"} {
		if err := d.Handle(path, noopHandler); !errors.Is(err, ErrDuplicatePath) {
			t.Errorf("Handle(%q) error = %v, want %v", path, err, ErrDuplicatePath)
		}
	}

	d.Setup(fiber.New(), &mockAuthenticator{})

	if err := d.Handle("/ws/late", noopHandler); !errors.Is(err, ErrAlreadySetup) {
		t.Errorf("Handle() after Setup error = %v, want %v", err, ErrAlreadySetup)
	}
}

func TestDispatcher_RejectsBeforeUpgrade(t *testing.T) {
	tests := []struct {
		name       string
		req        *http.Request
		wantStatus int
	}{
		{name: "unknown session", req: upgradeRequest("/ws", "nope"), wantStatus: fiber.StatusUnauthorized},
		{name: "trailing slash", req: upgradeRequest("/ws/", ""), wantStatus: fiber.StatusUnauthorized},
		{name: "upper case path", req: upgradeRequest("/WS", ""), wantStatus: fiber.StatusUnauthorized},
		{name: "mixed case with slash", req: upgradeRequest("/Ws/", ""), wantStatus: fiber.StatusUnauthorized},
		{
			name:       "foreign origin",
			req:        withOrigin(upgradeRequest("/ws", "good"), "https://evil.example"),
			wantStatus: fiber.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher("connect.sid", []string{testOrigin}, newMockLogger())
			reached := atomic.Bool{}
			if err := d.Handle("/ws", func(_ int64, _ *websocket.Conn) { reached.Store(true) }); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			app := fiber.New()
			d.Setup(app, &mockAuthenticator{users: map[string]int64{"good": 42}})

			resp, err := app.Test(tt.req, -1)
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if reached.Load() {
				t.Error("handler ran for a rejected upgrade")
			}
		})
	}
}

func TestRequireUser(t *testing.T) {
	tests := []struct {
		name       string
		req        *http.Request
		userID     any
		wantStatus int
	}{
		{name: "upgrade without user", req: upgradeRequest("/ws", ""), wantStatus: fiber.StatusUnauthorized},
		{name: "upgrade with zero user", req: upgradeRequest("/ws", ""), userID: int64(0), wantStatus: fiber.StatusUnauthorized},
		{name: "upgrade with wrong type", req: upgradeRequest("/ws", ""), userID: "7", wantStatus: fiber.StatusUnauthorized},
		{name: "upgrade with user", req: upgradeRequest("/ws", ""), userID: int64(7), wantStatus: fiber.StatusOK},
		{name: "plain request", req: httptest.NewRequest("GET", "/ws", nil), wantStatus: fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Use(func(c *fiber.Ctx) error {
				if tt.userID != nil {
					c.Locals(localsUserID, tt.userID)
				}
				return c.Next()
			})
			app.Get("/ws", requireUser, func(c *fiber.Ctx) error {
				return c.SendStatus(fiber.StatusOK)
			})

			resp, err := app.Test(tt.req, -1)
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}
