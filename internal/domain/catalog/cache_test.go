// internal/domain/catalog/cache_test.go
package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBuilder struct {
	mu       sync.Mutex
	products []Entry
	builds   int
	fail     bool
}

func (f *fakeBuilder) Build(_ context.Context, onlyAvailable bool) (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("store down")
	}
	f.builds++
	s := &Snapshot{Categories: []CategoryEntry{}, Products: []Entry{}}
	for _, p := range f.products {
		if onlyAvailable && !p.Available {
			continue
		}
		s.Products = append(s.Products, p)
	}
	hash, err := hashSnapshot(s)
	if err != nil {
		return nil, err
	}
	s.Hash = hash
	return s, nil
}

func (f *fakeBuilder) buildCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.builds
}

type fakeVersions struct {
	mu    sync.Mutex
	token string
	fail  bool
	bumps int
	// failBumps fails that many Bump calls before recovering
	failBumps int
}

func (f *fakeVersions) Current(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("store down")
	}
	return f.token, nil
}

func (f *fakeVersions) Bump(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("store down")
	}
	if f.failBumps > 0 {
		f.failBumps--
		return "", errors.New("store down")
	}
	f.bumps++
	f.token += "x"
	return f.token, nil
}

func (f *fakeVersions) bumpCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bumps
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testCache(t *testing.T, builder *fakeBuilder, versions *fakeVersions, redisClient *redis.Client) *Cache {
	t.Helper()
	return &Cache{
		builder:     builder,
		versions:    versions,
		redis:       redisClient,
		logger:      testLogger(),
		snapshotTTL: time.Minute,
		versionTTL:  time.Minute,
		slots:       make(map[bool]*slot),
	}
}

func testRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestCacheBuildsOnceThenServesLocal(t *testing.T) {
	_, rc := testRedis(t)
	builder := &fakeBuilder{products: []Entry{{ID: "p1", Name: "Beans", Available: true}}}
	versions := &fakeVersions{token: "t1"}
	cache := testCache(t, builder, versions, rc)
	ctx := context.Background()

	first := cache.Get(ctx, true)
	require.Len(t, first.Products, 1)
	second := cache.Get(ctx, true)
	assert.Equal(t, first.Hash, second.Hash)
	assert.Equal(t, 1, builder.buildCount())
}

func TestCacheScopesAreIndependent(t *testing.T) {
	_, rc := testRedis(t)
	builder := &fakeBuilder{products: []Entry{
		{ID: "p1", Name: "Beans", Available: true},
		{ID: "p2", Name: "Grounds", Available: false},
	}}
	cache := testCache(t, builder, &fakeVersions{token: "t1"}, rc)
	ctx := context.Background()

	storefront := cache.Get(ctx, true)
	admin := cache.Get(ctx, false)
	assert.Len(t, storefront.Products, 1)
	assert.Len(t, admin.Products, 2)
	assert.NotEqual(t, storefront.Hash, admin.Hash)
}

func TestCacheSharedTierServesOtherInstances(t *testing.T) {
	_, rc := testRedis(t)
	versions := &fakeVersions{token: "t1"}
	products := []Entry{{ID: "p1", Name: "Beans", Available: true}}

	first := testCache(t, &fakeBuilder{products: products}, versions, rc)
	built := first.Get(context.Background(), true)

	coldBuilder := &fakeBuilder{products: products}
	second := testCache(t, coldBuilder, versions, rc)
	got := second.Get(context.Background(), true)

	assert.Equal(t, built.Hash, got.Hash)
	assert.Equal(t, 0, coldBuilder.buildCount())
}

func TestInvalidateForcesRebuildEverywhere(t *testing.T) {
	mr, rc := testRedis(t)
	versions := &fakeVersions{token: "t1"}
	builder := &fakeBuilder{products: []Entry{{ID: "p1", Name: "Beans", Available: true}}}
	cache := testCache(t, builder, versions, rc)
	ctx := context.Background()

	before := cache.Get(ctx, true)
	require.Equal(t, 1, builder.buildCount())

	builder.mu.Lock()
	builder.products = append(builder.products, Entry{ID: "p2", Name: "Grounds", Available: true})
	builder.mu.Unlock()

	require.NoError(t, cache.Invalidate(ctx))
	assert.False(t, mr.Exists("catalog:v:t1:true"))

	after := cache.Get(ctx, true)
	assert.NotEqual(t, before.Hash, after.Hash)
	assert.Len(t, after.Products, 2)
	assert.Equal(t, 2, builder.buildCount())

	// A second instance on the old token picks up the bump through the
	// shared version source.
	other := testCache(t, &fakeBuilder{products: builder.products}, versions, rc)
	got := other.Get(ctx, true)
	assert.Equal(t, after.Hash, got.Hash)
}

func TestCacheServesLocalWhenVersionUnavailable(t *testing.T) {
	_, rc := testRedis(t)
	versions := &fakeVersions{token: "t1"}
	builder := &fakeBuilder{products: []Entry{{ID: "p1", Name: "Beans", Available: true}}}
	cache := testCache(t, builder, versions, rc)
	ctx := context.Background()

	warm := cache.Get(ctx, true)
	require.Len(t, warm.Products, 1)

	// Token store goes down and the local copy expires.
	versions.mu.Lock()
	versions.fail = true
	versions.mu.Unlock()
	cache.tokenMu.Lock()
	cache.tokenExpiresAt = time.Now().Add(-time.Second)
	cache.tokenMu.Unlock()

	got := cache.Get(ctx, true)
	assert.Equal(t, warm.Hash, got.Hash)
}

func TestCacheEmptySnapshotWhenNothingCached(t *testing.T) {
	_, rc := testRedis(t)
	cache := testCache(t, &fakeBuilder{}, &fakeVersions{fail: true}, rc)

	got := cache.Get(context.Background(), true)
	assert.Empty(t, got.Products)
	assert.Empty(t, got.Categories)
	assert.NotEmpty(t, got.Hash)
}

func TestCacheServesStaleOnRebuildFailure(t *testing.T) {
	mr, rc := testRedis(t)
	versions := &fakeVersions{token: "t1"}
	builder := &fakeBuilder{products: []Entry{{ID: "p1", Name: "Beans", Available: true}}}
	cache := testCache(t, builder, versions, rc)
	ctx := context.Background()

	warm := cache.Get(ctx, true)
	require.Len(t, warm.Products, 1)

	// Another instance bumps the version, then the store goes down
	// before this one can rebuild.
	versions.mu.Lock()
	versions.token = "t2"
	versions.mu.Unlock()
	cache.tokenMu.Lock()
	cache.tokenExpiresAt = time.Now().Add(-time.Second)
	cache.tokenMu.Unlock()
	mr.FlushAll()
	builder.mu.Lock()
	builder.fail = true
	builder.mu.Unlock()

	got := cache.Get(ctx, true)
	assert.Equal(t, warm.Hash, got.Hash)
}
