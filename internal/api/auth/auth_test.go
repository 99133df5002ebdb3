package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"supertodo/internal/account"
	"supertodo/internal/api/middleware"
	"supertodo/internal/apperr"
	"supertodo/internal/model"

	"github.com/gin-gonic/gin"
)

type mockAccounts struct {
	registerFunc func(ctx context.Context, name, email, password string) (*account.Session, error)
	loginFunc    func(ctx context.Context, email, password string) (*account.Session, error)
	profileFunc  func(ctx context.Context, userID string) (*model.User, error)
	calls        int
}

func (m *mockAccounts) Register(ctx context.Context, name, email, password string) (*account.Session, error) {
	m.calls++
	return m.registerFunc(ctx, name, email, password)
}

func (m *mockAccounts) Login(ctx context.Context, email, password string) (*account.Session, error) {
	m.calls++
	return m.loginFunc(ctx, email, password)
}

func (m *mockAccounts) Profile(ctx context.Context, userID string) (*model.User, error) {
	m.calls++
	return m.profileFunc(ctx, userID)
}

var testUser = model.User{
	ID:           "0190c6a0-0000-7000-8000-000000000001",
	Name:         "Ann",
	Email:        "ann@x.com",
	PasswordHash: "$2a$10$secret",
	CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
}

func newRouter(h *Handler, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	r.GET("/auth/profile", func(c *gin.Context) {
		c.Request = c.Request.WithContext(middleware.WithUserID(c.Request.Context(), userID))
		h.Profile(c)
	})
	r.POST("/auth/logout", h.Logout)
	return r
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegister_Created(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	accounts := &mockAccounts{registerFunc: func(ctx context.Context, name, email, password string) (*account.Session, error) {
		if name != "Ann" || email != "ann@x.com" || password != "Secr3t!1" {
			t.Fatalf("unexpected args %q %q %q", name, email, password)
		}
		return &account.Session{User: testUser, Token: "tok", ExpiresAt: testUser.CreatedAt.Add(time.Hour)}, nil
	}}
	r := newRouter(NewHandler(accounts, logger), "")

	w := doJSON(r, http.MethodPost, "/auth/register", `{"name":"Ann","email":"ann@x.com","password":"Secr3t!1"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp SessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token != "tok" || resp.ID != testUser.ID || resp.Email != "ann@x.com" || resp.Name != "Ann" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if strings.Contains(w.Body.String(), "secret") || strings.Contains(w.Body.String(), "password") {
		t.Fatalf("password material leaked: %s", w.Body.String())
	}
}

func TestRegister_ErrorMapping(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{apperr.Validation("password must be at least 8 characters"), http.StatusBadRequest, "validation_error"},
		{apperr.New(apperr.KindDuplicateEmail, "email already exists"), http.StatusConflict, "duplicate_email"},
	}
	for _, tc := range cases {
		accounts := &mockAccounts{registerFunc: func(ctx context.Context, name, email, password string) (*account.Session, error) {
			return nil, tc.err
		}}
		r := newRouter(NewHandler(accounts, logger), "")
		w := doJSON(r, http.MethodPost, "/auth/register", `{"name":"Ann","email":"ann@x.com","password":"x"}`)
		if w.Code != tc.status || !strings.Contains(w.Body.String(), `"error":"`+tc.code+`"`) {
			t.Fatalf("expected %d %s, got %d %s", tc.status, tc.code, w.Code, w.Body.String())
		}
	}
}

func TestRegister_MalformedBody(t *testing.T) {
	accounts := &mockAccounts{}
	r := newRouter(NewHandler(accounts, nil), "")

	w := doJSON(r, http.MethodPost, "/auth/register", "{")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if accounts.calls != 0 {
		t.Fatalf("service should not be called on malformed body")
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	accounts := &mockAccounts{loginFunc: func(ctx context.Context, email, password string) (*account.Session, error) {
		return nil, apperr.New(apperr.KindInvalidCredentials, "invalid email or password")
	}}
	r := newRouter(NewHandler(accounts, nil), "")

	w := doJSON(r, http.MethodPost, "/auth/login", `{"email":"ann@x.com","password":"nope"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"error":"invalid_credentials"`) {
		t.Fatalf("unexpected body %s", w.Body.String())
	}

	w = doJSON(r, http.MethodPost, "/auth/login", `{"email":"ann@x.com"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing password, got %d", w.Code)
	}
}

func TestProfile_UsesContextIdentity(t *testing.T) {
	accounts := &mockAccounts{profileFunc: func(ctx context.Context, userID string) (*model.User, error) {
		if userID != testUser.ID {
			return nil, apperr.NotFound("user not found")
		}
		u := testUser
		return &u, nil
	}}
	h := NewHandler(accounts, nil)

	w := doJSON(newRouter(h, testUser.ID), http.MethodGet, "/auth/profile", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"email":"ann@x.com"`) {
		t.Fatalf("unexpected profile response %d %s", w.Code, w.Body.String())
	}

	w = doJSON(newRouter(h, "gone"), http.MethodGet, "/auth/profile", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for deleted user, got %d", w.Code)
	}
}

func TestLogout(t *testing.T) {
	w := doJSON(newRouter(NewHandler(&mockAccounts{}, nil), ""), http.MethodPost, "/auth/logout", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "logged out") {
		t.Fatalf("unexpected logout response %d %s", w.Code, w.Body.String())
	}
}
