package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"opsconsole/pkg/config"
)

func TestRedactDSN(t *testing.T) {
	assert.Equal(t, "***@db:5432/console", redactDSN("postgres://user:pw@db:5432/console"))
	assert.Equal(t, "db:5432", redactDSN("db:5432"))
}

func TestUnconfiguredBackendsReturnNil(t *testing.T) {
	log := zap.NewNop().Sugar()

	pool, err := Postgres(context.Background(), config.Config{}, log)
	require.NoError(t, err)
	assert.Nil(t, pool)

	cli, err := Redis(context.Background(), config.Config{}, log)
	require.NoError(t, err)
	assert.Nil(t, cli)
}

func TestRedisRejectsBadURL(t *testing.T) {
	_, err := Redis(context.Background(), config.Config{RedisURL: "not-a-url"}, zap.NewNop().Sugar())
	assert.Error(t, err)
}
