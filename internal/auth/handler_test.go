package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/gastromanager/gastromanager/internal/auth"
	"github.com/gastromanager/gastromanager/internal/shared"
	"github.com/gastromanager/gastromanager/internal/view"
	_ "github.com/gastromanager/gastromanager/testing"
)

type stubRepo struct {
	user *auth.User
}

func (s *stubRepo) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	if s.user == nil || s.user.Username != username {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	return nil
}

func newAuthHandler(t *testing.T, repo auth.Repository) (*auth.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	handler := auth.NewHandler(nil, auth.NewService(repo), templates, sessionManager, csrfManager)
	return handler, sessionManager
}

func TestLoginPage(t *testing.T) {
	handler, sessionManager := newAuthHandler(t, &stubRepo{})

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	sess, err := sessionManager.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)

	res := httptest.NewRecorder()
	handler.ShowLoginForTest(res, req)
	if err := sessionManager.Commit(ctx, res, req, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "<form") {
		t.Fatalf("expected login form in body")
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	handler, sessionManager := newAuthHandler(t, &stubRepo{user: &auth.User{
		ID: 1, Username: "scooper", FullName: "S. Cooper", Level: "service",
		PasswordHash: string(hashed), IsActive: true,
	}})

	// Prime session and CSRF token via GET.
	getReq := httptest.NewRequest(http.MethodGet, "/login", nil)
	sess, err := sessionManager.Load(context.Background(), getReq)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	getCtx := shared.ContextWithSession(getReq.Context(), sess)
	getReq = getReq.WithContext(getCtx)
	getRes := httptest.NewRecorder()
	handler.ShowLoginForTest(getRes, getReq)
	if err := sessionManager.Commit(getCtx, getRes, getReq, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}

	token := sess.Get(shared.CSRFSessionKey)
	if token == "" {
		t.Fatalf("csrf token not set")
	}

	postData := url.Values{}
	postData.Set("username", "scooper")
	postData.Set("password", "wrongpass")
	postData.Set("csrf_token", token)

	postReq := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(postData.Encode()))
	postReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	postReq.AddCookie(&http.Cookie{Name: sessionManager.CookieName(), Value: sess.ID})

	loadedSess, err := sessionManager.Load(context.Background(), postReq)
	if err != nil {
		t.Fatalf("load session for post: %v", err)
	}
	postCtx := shared.ContextWithSession(postReq.Context(), loadedSess)
	postReq = postReq.WithContext(postCtx)

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, postReq)
	if err := sessionManager.Commit(postCtx, res, postReq, loadedSess); err != nil {
		t.Fatalf("commit session post: %v", err)
	}

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "Invalid username or password") {
		t.Fatalf("expected error message in response")
	}
}

func TestLoginSuccessSetsSessionUser(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	handler, sessionManager := newAuthHandler(t, &stubRepo{user: &auth.User{
		ID: 42, Username: "manager", FullName: "The Manager", Level: "manager",
		PasswordHash: string(hashed), IsActive: true,
	}})

	postData := url.Values{}
	postData.Set("username", "manager")
	postData.Set("password", "correctpass")

	postReq := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(postData.Encode()))
	postReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	sess, err := sessionManager.Load(context.Background(), postReq)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	postCtx := shared.ContextWithSession(postReq.Context(), sess)
	postReq = postReq.WithContext(postCtx)

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, postReq)

	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", res.Code)
	}
	if sess.User() != "42" {
		t.Fatalf("expected session user 42, got %q", sess.User())
	}
}

type recordingRepo struct {
	stubRepo
	sessionID string
	ip        string
	ua        string
	called    bool
}

func (r *recordingRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	r.called = true
	r.sessionID = id
	r.ip = ip
	r.ua = ua
	return nil
}

// Clients without a User-Agent header (curl scripts, kiosk browsers) must
// still get a persisted session. The sessions table stores the empty
// string verbatim, never NULL.
func TestLoginWithoutUserAgentPersistsSession(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	repo := &recordingRepo{stubRepo: stubRepo{user: &auth.User{
		ID: 7, Username: "kiosk", FullName: "Front Kiosk", Level: "service",
		PasswordHash: string(hashed), IsActive: true,
	}}}
	handler, sessionManager := newAuthHandler(t, repo)

	postData := url.Values{}
	postData.Set("username", "kiosk")
	postData.Set("password", "correctpass")

	postReq := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(postData.Encode()))
	postReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	postReq.Header.Del("User-Agent")
	sess, err := sessionManager.Load(context.Background(), postReq)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	postReq = postReq.WithContext(shared.ContextWithSession(postReq.Context(), sess))

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, postReq)

	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", res.Code)
	}
	if !repo.called {
		t.Fatalf("expected a session row to be written")
	}
	if repo.ua != "" || repo.sessionID == "" {
		t.Fatalf("expected verbatim empty user agent, got %q (session %q)", repo.ua, repo.sessionID)
	}
}
