package auth

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/go-monolith/mono/pkg/types"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(_ string, _ ...any) {}
func (m *mockLogger) Info(_ string, _ ...any)  {}
func (m *mockLogger) Warn(_ string, _ ...any)  {}
func (m *mockLogger) Error(_ string, _ ...any) {}
func (m *mockLogger) With(_ ...any) types.Logger {
	return m
}
func (m *mockLogger) WithModule(_ string) types.Logger {
	return m
}
func (m *mockLogger) WithError(_ error) types.Logger {
	return m
}

// mockSessionStore is an in-memory SessionStore.
type mockSessionStore struct {
	sessions map[string]*Session
	err      error
	calls    int
}

func (s *mockSessionStore) Get(_ context.Context, sid string) (*Session, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.sessions[sid], nil
}

const testSecret = "keyboard cat"

func TestAuthenticator_Authenticate(t *testing.T) {
	store := &mockSessionStore{
		sessions: map[string]*Session{
			"valid-sid":  {UserID: 42},
			"anon-sid":   {UserID: 0},
			"second-sid": {UserID: 7},
		},
	}
	a, err := NewAuthenticator(store, []string{testSecret, "old-secret"}, &mockLogger{})
	if err != nil {
		t.Fatalf("NewAuthenticator() error = %v", err)
	}

	tests := []struct {
		name    string
		cookie  string
		wantID  int64
		wantErr error
	}{
		{
			name:   "valid signed cookie",
			cookie: Sign("valid-sid", testSecret),
			wantID: 42,
		},
		{
			name:   "url-encoded cookie",
			cookie: url.QueryEscape(Sign("valid-sid", testSecret)),
			wantID: 42,
		},
		{
			name:   "signed with rotated secret",
			cookie: Sign("second-sid", "old-secret"),
			wantID: 7,
		},
		{
			name:    "missing cookie",
			cookie:  "",
			wantErr: ErrNoSessionCookie,
		},
		{
			name:    "unsigned cookie",
			cookie:  "valid-sid",
			wantErr: ErrInvalidSignature,
		},
		{
			name:    "wrong secret",
			cookie:  Sign("valid-sid", "attacker"),
			wantErr: ErrInvalidSignature,
		},
		{
			name:    "tampered session id",
			cookie:  "s:other-sid" + Sign("valid-sid", testSecret)[len("s:valid-sid"):],
			wantErr: ErrInvalidSignature,
		},
		{
			name:    "unknown session",
			cookie:  Sign("missing-sid", testSecret),
			wantErr: ErrSessionNotFound,
		},
		{
			name:    "session without user",
			cookie:  Sign("anon-sid", testSecret),
			wantErr: ErrNoAuthenticatedUser,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := a.Authenticate(context.Background(), tt.cookie)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Authenticate() error = %v, want %v", err, tt.wantErr)
				}
				if id != 0 {
					t.Errorf("Authenticate() id = %d, want 0 on failure", id)
				}
				return
			}

			if err != nil {
				t.Fatalf("Authenticate() unexpected error: %v", err)
			}
			if id != tt.wantID {
				t.Errorf("Authenticate() id = %d, want %d", id, tt.wantID)
			}
		})
	}
}

func TestAuthenticator_InvalidSignatureSkipsStore(t *testing.T) {
	store := &mockSessionStore{sessions: map[string]*Session{}}
	a, _ := NewAuthenticator(store, []string{testSecret}, &mockLogger{})

	_, _ = a.Authenticate(context.Background(), Sign("sid", "wrong"))

	if store.calls != 0 {
		t.Errorf("store called %d times for a forged cookie, want 0", store.calls)
	}
}

func TestAuthenticator_StoreError(t *testing.T) {
	storeErr := errors.New("connection refused")
	a, _ := NewAuthenticator(&mockSessionStore{err: storeErr}, []string{testSecret}, &mockLogger{})

	_, err := a.Authenticate(context.Background(), Sign("sid", testSecret))
	if !errors.Is(err, storeErr) {
		t.Errorf("Authenticate() error = %v, want wrapped %v", err, storeErr)
	}
}

func TestNewAuthenticator_RequiresSecret(t *testing.T) {
	if _, err := NewAuthenticator(&mockSessionStore{}, nil, &mockLogger{}); !errors.Is(err, ErrNoSecrets) {
		t.Errorf("NewAuthenticator() error = %v, want %v", err, ErrNoSecrets)
	}
}

func TestSign_KnownValue(t *testing.T) {
	// Reference value produced by the cookie-signature algorithm used by the HTTP tier.
	got := Sign("hello", "tobiiscool")
	want := "s:hello.DGDUkGlIkCzPz+C0B064FNgHdEjox7ch8tOBGslZ5QI"
	if got != want {
		t.Errorf("Sign() = %q, want %q", got, want)
	}
}
