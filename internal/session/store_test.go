package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"opsconsole/pkg/config"
)

// exerciseStore runs the slot contract against any backend.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "new slot should be anonymous")

	require.NoError(t, s.Set(ctx, "header.payload.sig"))
	tok, ok, err := s.Get(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "header.payload.sig", tok)

	// no validation: any string is accepted
	require.NoError(t, s.Set(ctx, "not a jwt at all"))
	tok, _, _ = s.Get(ctx)
	assert.Equal(t, "not a jwt at all", tok)

	t.Log("Clearing twice leaves the slot empty without error")
	require.NoError(t, s.Clear(ctx))
	_, ok, err = s.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, s.Clear(ctx))
	_, ok, err = s.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "x"))
	require.NoError(t, s.Set(ctx, ""))
	assert.False(t, Present(ctx, s), "empty credential reads back as absent")
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "accessToken")
	s := NewFileStore(path)
	exerciseStore(t, s)

	require.NoError(t, s.Set(context.Background(), "abc"))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	assert.Equal(t, path, s.Path())
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accessToken")
	require.NoError(t, NewFileStore(path).Set(context.Background(), "persisted"))

	tok, ok, err := NewFileStore(path).Get(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "persisted", tok)
}

func TestCookieStore(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	exerciseStore(t, NewCookieStore(rec, req, "accessToken", false))
}

func TestCookieStoreReadsRequestCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/products", nil)
	req.AddCookie(&http.Cookie{Name: "accessToken", Value: "tok"})
	rec := httptest.NewRecorder()
	s := NewCookieStore(rec, req, "accessToken", true)

	tok, ok, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", tok)

	require.NoError(t, s.Clear(context.Background()))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "accessToken", cookies[0].Name)
	assert.True(t, cookies[0].MaxAge < 0, "clear should expire the cookie")
	assert.True(t, cookies[0].Secure)
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	cfg := config.Config{SessionBackend: "redis", RedisURL: url, SessionSlotKey: "opsconsole:test:accessToken"}
	s, err := Open(context.Background(), cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	cfg := config.Config{SessionBackend: "postgres", DatabaseURL: dsn, SessionSlotKey: "test-slot"}
	s, err := Open(context.Background(), cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestOpenSelectsBackend(t *testing.T) {
	log := zap.NewNop().Sugar()
	ctx := context.Background()

	s, err := Open(ctx, config.Config{SessionBackend: "memory"}, log)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(ctx, config.Config{SessionBackend: "file", SessionFile: filepath.Join(t.TempDir(), "tok")}, log)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = Open(ctx, config.Config{SessionBackend: "redis"}, log)
	assert.Error(t, err)

	_, err = Open(ctx, config.Config{SessionBackend: "etcd"}, log)
	assert.Error(t, err)
}
