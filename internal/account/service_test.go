package account

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"supertodo/internal/apperr"
	"supertodo/internal/model"
	"supertodo/internal/pkg/notify"
	"supertodo/internal/pkg/token"

	"golang.org/x/crypto/bcrypt"
)

type mockUserStore struct {
	byEmail map[string]*model.User
	byID    map[string]*model.User
	findErr error
	seq     int
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{byEmail: map[string]*model.User{}, byID: map[string]*model.User{}}
}

func (m *mockUserStore) Create(ctx context.Context, user *model.User) error {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if _, ok := m.byEmail[email]; ok {
		return apperr.New(apperr.KindDuplicateEmail, "email already exists")
	}
	m.seq++
	user.ID = fmt.Sprintf("user-%d", m.seq)
	user.Email = email
	user.CreatedAt = time.Now()
	stored := *user
	m.byEmail[email] = &stored
	m.byID[user.ID] = &stored
	return nil
}

func (m *mockUserStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	u, ok := m.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	return u, nil
}

func (m *mockUserStore) FindByID(ctx context.Context, id string) (*model.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	return u, nil
}

type mockNotifier struct {
	calls int
	err   error
}

func (m *mockNotifier) SendWelcome(ctx context.Context, name string, toEmail string) error {
	m.calls++
	return m.err
}

func newTestService(t *testing.T, store UserStore, notifier notify.Notifier) (*Service, *token.Service) {
	t.Helper()
	tokens, err := token.NewService("test-secret", "supertodo", time.Hour)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := NewService(store, tokens, notifier, bcrypt.MinCost, logger)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, tokens
}

func TestRegister_IssuesTokenAndHashesPassword(t *testing.T) {
	store := newMockUserStore()
	notifier := &mockNotifier{err: errors.New("smtp down")}
	svc, tokens := newTestService(t, store, notifier)

	session, err := svc.Register(context.Background(), " Ann ", "Ann@X.com", "Secr3t!1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if session.User.Name != "Ann" || session.User.Email != "ann@x.com" {
		t.Fatalf("unexpected user %+v", session.User)
	}
	if session.User.PasswordHash == "Secr3t!1" {
		t.Fatalf("password stored in clear text")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(session.User.PasswordHash), []byte("Secr3t!1")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}
	sub, err := tokens.Verify(session.Token)
	if err != nil || sub != session.User.ID {
		t.Fatalf("token subject = %q, err = %v", sub, err)
	}
	if notifier.calls != 1 {
		t.Fatalf("expected one welcome mail attempt, got %d", notifier.calls)
	}
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newTestService(t, newMockUserStore(), nil)
	cases := []struct{ name, email, password string }{
		{"", "a@x.com", "Secr3t!1"},
		{"Ann", "", "Secr3t!1"},
		{"Ann", "a@x.com", ""},
		{"Ann", "not-an-email", "Secr3t!1"},
		{"Ann", "a@x.com", "short"},
		{"Ann", "a@x.com", strings.Repeat("p", 73)},
	}
	for _, c := range cases {
		_, err := svc.Register(context.Background(), c.name, c.email, c.password)
		if apperr.KindOf(err) != apperr.KindValidation {
			t.Fatalf("register(%q, %q, len %d): expected validation_error, got %v", c.name, c.email, len(c.password), err)
		}
	}
}

func TestRegister_DuplicateEmailAnyCase(t *testing.T) {
	svc, _ := newTestService(t, newMockUserStore(), nil)
	ctx := context.Background()
	if _, err := svc.Register(ctx, "Ann", "ann@x.com", "Secr3t!1"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := svc.Register(ctx, "Ann Again", "ANN@x.COM", "Secr3t!2")
	if apperr.KindOf(err) != apperr.KindDuplicateEmail {
		t.Fatalf("expected duplicate_email, got %v", err)
	}
}

func TestLogin_UnknownEmailAndWrongPasswordAreIndistinguishable(t *testing.T) {
	svc, _ := newTestService(t, newMockUserStore(), nil)
	ctx := context.Background()
	if _, err := svc.Register(ctx, "Ann", "ann@x.com", "Secr3t!1"); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, unknownErr := svc.Login(ctx, "nobody@x.com", "Secr3t!1")
	_, wrongErr := svc.Login(ctx, "ann@x.com", "wrong")
	if apperr.KindOf(unknownErr) != apperr.KindInvalidCredentials || apperr.KindOf(wrongErr) != apperr.KindInvalidCredentials {
		t.Fatalf("expected invalid_credentials for both, got %v / %v", unknownErr, wrongErr)
	}
	if apperr.MessageOf(unknownErr) != apperr.MessageOf(wrongErr) {
		t.Fatalf("messages differ: %q vs %q", apperr.MessageOf(unknownErr), apperr.MessageOf(wrongErr))
	}

	session, err := svc.Login(ctx, "ANN@x.com", "Secr3t!1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if session.Token == "" || session.User.Email != "ann@x.com" {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestLogin_StoreFailureIsNotMaskedAsCredentials(t *testing.T) {
	store := newMockUserStore()
	store.findErr = apperr.Internal("query user failed", errors.New("db down"))
	svc, _ := newTestService(t, store, nil)

	_, err := svc.Login(context.Background(), "ann@x.com", "Secr3t!1")
	if apperr.KindOf(err) != apperr.KindInternal {
		t.Fatalf("expected internal_error, got %v", err)
	}
}

func TestProfile(t *testing.T) {
	svc, _ := newTestService(t, newMockUserStore(), nil)
	ctx := context.Background()
	session, err := svc.Register(ctx, "Ann", "ann@x.com", "Secr3t!1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	user, err := svc.Profile(ctx, session.User.ID)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if user.Email != "ann@x.com" {
		t.Fatalf("email = %q", user.Email)
	}
	if _, err := svc.Profile(ctx, "missing"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestBcryptCost(t *testing.T) {
	cases := map[int]int{
		0:                  bcrypt.DefaultCost,
		bcrypt.MinCost - 1: bcrypt.DefaultCost,
		bcrypt.MinCost:     bcrypt.MinCost,
		12:                 12,
		bcrypt.MaxCost:     bcrypt.MaxCost,
		40:                 bcrypt.DefaultCost,
	}
	for in, want := range cases {
		if got := BcryptCost(in); got != want {
			t.Fatalf("BcryptCost(%d) = %d, want %d", in, got, want)
		}
	}
}
