package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gastromanager/gastromanager/internal/shared"
)

type stubPerms struct {
	granted map[int64][]string
}

func (s *stubPerms) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	return s.granted[userID], nil
}

func requestWithUser(t *testing.T, userID string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/stock", nil)
	sess := shared.NewBareSession()
	if userID != "" {
		sess.SetUser(userID)
	}
	return r.WithContext(shared.ContextWithSession(r.Context(), sess))
}

func TestRequireAnyGrantsMatchingPermission(t *testing.T) {
	m := Middleware{Perms: &stubPerms{granted: map[int64][]string{7: {shared.PermStockView}}}}
	var called bool
	handler := m.RequireAny(shared.PermStockView, shared.PermStockEdit)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithUser(t, "7"))
	require.True(t, called)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAllRejectsPartialGrant(t *testing.T) {
	m := Middleware{Perms: &stubPerms{granted: map[int64][]string{7: {shared.PermStockView}}}}
	handler := m.RequireAll(shared.PermStockView, shared.PermStockEdit)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithUser(t, "7"))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAnonymousRedirectsToLogin(t *testing.T) {
	m := Middleware{Perms: &stubPerms{}}
	handler := m.RequireAny(shared.PermStockView)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithUser(t, ""))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestLevelPermissions(t *testing.T) {
	manager := PermissionsForLevel(LevelManager)
	require.ElementsMatch(t, shared.CoreScopes(), manager)

	service := PermissionsForLevel(LevelService)
	require.Contains(t, service, shared.PermStockEdit)
	require.NotContains(t, service, shared.PermProductionEdit)

	production := PermissionsForLevel(LevelProduction)
	require.Contains(t, production, shared.PermProductionEdit)
	require.NotContains(t, production, shared.PermUsersEdit)

	require.Empty(t, PermissionsForLevel(Level("intern")))
}
