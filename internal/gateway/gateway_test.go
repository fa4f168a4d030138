package gateway

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsconsole/internal/notify"
	"opsconsole/internal/routes"
	"opsconsole/pkg/middleware"
)

const slotCookie = "accessToken"

func credential(payload string) string {
	enc := base64.RawURLEncoding.EncodeToString
	return enc([]byte(`{"alg":"HS256"}`)) + "." + enc([]byte(payload)) + ".sig"
}

func newRouter(t *testing.T, opts ...Option) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	r.Use(middleware.SessionSlot(slotCookie, false))
	New(routes.Default(), nil, opts...).RegisterHTTP(r)
	return r
}

func get(h http.Handler, path, token string, extra ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: slotCookie, Value: token})
	}
	for _, c := range extra {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func cookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestAnonymousNavigationRedirectsToLogin(t *testing.T) {
	h := newRouter(t)
	rec := get(h, "/products?page=2", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?redirect=%2Fproducts%3Fpage%3D2", rec.Header().Get("Location"))

	rec = get(h, "/login?redirect=%2Fproducts", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `data-route="login"`)
	assert.Contains(t, rec.Body.String(), `data-layout="fullscreen"`)
}

func TestPermittedNavigationServesShell(t *testing.T) {
	h := newRouter(t)
	rec := get(h, "/products", credential(`{"permissions":["P003"]}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `data-route="products"`)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestAdminReachesEveryRoute(t *testing.T) {
	h := newRouter(t)
	tok := credential(`{"permissions":["admin"]}`)
	for _, p := range []string{"/", "/upload", "/products", "/user/roles", "/user/auth"} {
		assert.Equal(t, http.StatusOK, get(h, p, tok).Code, p)
	}
}

func TestDeniedNavigationFlashesNotice(t *testing.T) {
	h := newRouter(t)
	tok := credential(`{"permissions":["P001"]}`)

	rec := get(h, "/products", tok)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/403", rec.Header().Get("Location"))
	flash := cookie(rec, notify.FlashCookie)
	require.NotNil(t, flash, "denial should leave a notice for the next page")

	rec = get(h, "/403", tok, flash)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "权限不足，无法访问该页面。")
	expired := cookie(rec, notify.FlashCookie)
	require.NotNil(t, expired)
	assert.Less(t, expired.MaxAge, 0)
}

func TestAuthenticatedLoginGoesHome(t *testing.T) {
	rec := get(newRouter(t), "/login", credential(`{}`))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestUnknownPathFallsBack(t *testing.T) {
	h := newRouter(t)
	tok := credential(`{}`)
	rec := get(h, "/nowhere", tok)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/404", rec.Header().Get("Location"))

	rec = get(h, "/404", tok)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `data-route="not-found"`)
}

func TestLoginFormResumesPendingNavigation(t *testing.T) {
	h := newRouter(t)
	tok := credential(`{"permissions":["P003"]}`)
	form := url.Values{"token": {tok}, "redirect": {"/products?page=2"}}
	req := httptest.NewRequest(http.MethodPost, "/session", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/products?page=2", rec.Header().Get("Location"))
	c := cookie(rec, slotCookie)
	require.NotNil(t, c)
	assert.Equal(t, tok, c.Value)
	assert.True(t, c.HttpOnly)
}

func TestLoginRejectsForeignResume(t *testing.T) {
	h := newRouter(t)
	for _, target := range []string{"//evil.example/", "https://evil.example/", "", "/\t/evil.example/", "/\n/evil.example/"} {
		form := url.Values{"token": {"opaque"}, "redirect": {target}}
		req := httptest.NewRequest(http.MethodPost, "/session", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "/", rec.Header().Get("Location"), "resume %q", target)
	}
}

func TestLoginJSONRejectsForeignResume(t *testing.T) {
	h := newRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/session?redirect=%2F%09%2Fevil.example%2F", strings.NewReader(`{"token":"opaque"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "/", body["redirect"])
}

func TestLoginJSON(t *testing.T) {
	h := newRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/session?redirect=%2Fupload", strings.NewReader(`{"token":"opaque"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "/upload", body["redirect"])
	require.NotNil(t, cookie(rec, slotCookie))
}

func TestLoginWithoutCredential(t *testing.T) {
	h := newRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/session", strings.NewReader(`{"token":"  "}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Nil(t, cookie(rec, slotCookie))
}

func TestLogoutClearsSlot(t *testing.T) {
	h := newRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: slotCookie, Value: "opaque"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	c := cookie(rec, slotCookie)
	require.NotNil(t, c)
	assert.Less(t, c.MaxAge, 0)
}

func TestSessionInfoAnonymous(t *testing.T) {
	rec := get(newRouter(t), "/session", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "未授权或登录已过期", body["detail"])
}

func TestSessionInfo(t *testing.T) {
	exp := time.Now().Add(-time.Hour).Truncate(time.Second)
	tok, err := jwt.NewBuilder().
		Subject("E1001").
		Issuer("ops-auth").
		Expiration(exp).
		Claim("permissions", []string{"P003", "P001"}).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte("test-secret")))
	require.NoError(t, err)

	rec := get(newRouter(t), "/session", string(signed))
	require.Equal(t, http.StatusOK, rec.Code)
	var info SessionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.True(t, info.Authenticated)
	assert.Equal(t, "E1001", info.Subject)
	assert.Equal(t, "ops-auth", info.Issuer)
	require.NotNil(t, info.ExpiresAt)
	assert.True(t, exp.Equal(*info.ExpiresAt))
	assert.True(t, info.Expired)
	assert.Equal(t, []string{"P001", "P003"}, info.Permissions)
}

func TestSessionInfoOpaqueCredential(t *testing.T) {
	rec := get(newRouter(t), "/session", "opaque")
	require.Equal(t, http.StatusOK, rec.Code)
	var info SessionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.True(t, info.Authenticated)
	assert.Empty(t, info.Subject)
	assert.Empty(t, info.Permissions)
}

func TestStaticApplication(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<div id=app></div>"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("boot()"), 0o644))
	h := newRouter(t, WithStaticDir(dir))

	rec := get(h, "/assets/app.js", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "boot()", rec.Body.String())

	rec = get(h, "/upload", credential(`{"permissions":["P004"]}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<div id=app></div>", rec.Body.String())

	assert.Equal(t, http.StatusFound, get(h, "/upload", "").Code)
}

func TestRouteMenu(t *testing.T) {
	rec := get(newRouter(t), "/session/routes", credential(`{"permissions":["P004"]}`))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Routes []struct {
			Path   string `json:"path"`
			Access string `json:"access"`
		} `json:"routes"`
		Fallback string `json:"fallback"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	access := map[string]string{}
	for _, r := range body.Routes {
		access[r.Path] = r.Access
	}
	assert.Equal(t, "yes", access["/upload"])
	assert.Equal(t, "no", access["/products"])
	assert.Equal(t, "public", access["/login"])
	assert.Equal(t, "/404", body.Fallback)
	assert.Nil(t, cookie(rec, notify.FlashCookie), "menus never flash a denial")
}
