package database

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRedis(t *testing.T) (*RedisClient, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	t.Cleanup(func() { _ = db.Close() })
	return &RedisClient{Client: db}, mock
}

func TestRedisClient_SetAndGet(t *testing.T) {
	client, mock := newMockRedis(t)
	ctx := context.Background()

	mock.ExpectSet("calc:sess-1:v1", "payload", time.Minute).SetVal("OK")
	mock.ExpectGet("calc:sess-1:v1").SetVal("payload")

	require.NoError(t, client.Set(ctx, "calc:sess-1:v1", "payload", time.Minute))

	got, err := client.Get(ctx, "calc:sess-1:v1")
	require.NoError(t, err)
	assert.Equal(t, "payload", got)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisClient_GetMissReturnsNil(t *testing.T) {
	client, mock := newMockRedis(t)

	mock.ExpectGet("calc:sess-1:v2").RedisNil()

	_, err := client.Get(context.Background(), "calc:sess-1:v2")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestRedisClient_Del(t *testing.T) {
	client, mock := newMockRedis(t)

	mock.ExpectDel("calc:sess-1:v1", "calc:sess-1:v2").SetVal(2)

	require.NoError(t, client.Del(context.Background(), "calc:sess-1:v1", "calc:sess-1:v2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisClient_PingFailureIsWrapped(t *testing.T) {
	client, mock := newMockRedis(t)

	mock.ExpectPing().SetErr(assert.AnError)

	err := client.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
}
