// internal/domain/store/service_test.go
package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return &Service{
		redis:  redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		logger: logger,
	}, mr
}

func TestStatusServesRedisTier(t *testing.T) {
	svc, mr := testService(t)
	require.NoError(t, mr.Set(redisKey, `{"is_open":false,"closed_message":"closed for holidays"}`))

	open, message := svc.IsOpen(context.Background())
	assert.False(t, open)
	assert.Equal(t, "closed for holidays", message)
}

func TestStatusLocalCacheSkipsRedis(t *testing.T) {
	svc, mr := testService(t)
	require.NoError(t, mr.Set(redisKey, `{"is_open":false}`))

	first := svc.Status(context.Background())
	require.False(t, first.IsOpen)

	// The local copy answers even after the redis entry changes.
	require.NoError(t, mr.Set(redisKey, `{"is_open":true}`))
	second := svc.Status(context.Background())
	assert.False(t, second.IsOpen)
}

func TestFromRedisRejectsCorruptEntry(t *testing.T) {
	svc, mr := testService(t)
	require.NoError(t, mr.Set(redisKey, "{not json"))

	_, ok := svc.fromRedis(context.Background())
	assert.False(t, ok)
}

func TestToRedisRoundTrip(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	svc.toRedis(ctx, StoreStatus{IsOpen: false, ClosedMessage: "renovation"})
	status, ok := svc.fromRedis(ctx)
	require.True(t, ok)
	assert.False(t, status.IsOpen)
	assert.Equal(t, "renovation", status.ClosedMessage)
}
