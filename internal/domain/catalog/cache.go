// internal/domain/catalog/cache.go
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/singleflight"
)

const versionDocID = "catalog"

// snapshotSource produces fresh snapshots on a cache miss
type snapshotSource interface {
	Build(ctx context.Context, onlyAvailable bool) (*Snapshot, error)
}

// versionSource reads and bumps the durable catalog version token
type versionSource interface {
	Current(ctx context.Context) (string, error)
	Bump(ctx context.Context) (string, error)
}

// slot holds one locally cached snapshot scope
type slot struct {
	snapshot  *Snapshot
	version   string
	expiresAt time.Time
}

// Cache serves catalog snapshots through two tiers: a per-process slot
// pair and a Redis tier shared between instances, both keyed by a
// durable version token. Bumping the token invalidates every tier on
// every instance at once.
type Cache struct {
	builder  snapshotSource
	versions versionSource
	redis    *redis.Client
	logger   *logrus.Logger

	snapshotTTL time.Duration
	versionTTL  time.Duration

	mu    sync.Mutex
	slots map[bool]*slot

	tokenMu        sync.Mutex
	token          string
	tokenExpiresAt time.Time

	group singleflight.Group
}

// NewCache creates a catalog cache
func NewCache(db *mongo.Database, redisClient *redis.Client, builder *Builder, snapshotTTL, versionTTL time.Duration, logger *logrus.Logger) *Cache {
	return &Cache{
		builder:     builder,
		versions:    &mongoVersions{meta: db.Collection("catalog_meta")},
		redis:       redisClient,
		logger:      logger,
		snapshotTTL: snapshotTTL,
		versionTTL:  versionTTL,
		slots:       make(map[bool]*slot),
	}
}

// Get returns the current snapshot for the given scope. Store failures
// degrade to the freshest data available; this method never fails on a
// backend outage.
func (c *Cache) Get(ctx context.Context, onlyAvailable bool) *Snapshot {
	token, err := c.currentVersion(ctx)
	if err != nil {
		// Version token unreadable: the local slot is the best we have,
		// stale or not.
		c.logger.WithError(err).Warn("catalog version token unavailable, serving local slot")
		if s := c.localSlot(onlyAvailable); s != nil {
			return s.snapshot
		}
		return EmptySnapshot()
	}

	if s := c.localSlot(onlyAvailable); s != nil && s.version == token && time.Now().Before(s.expiresAt) {
		return s.snapshot
	}

	if snapshot := c.sharedGet(ctx, token, onlyAvailable); snapshot != nil {
		c.fillSlot(onlyAvailable, snapshot, token)
		return snapshot
	}

	key := fmt.Sprintf("%s:%t", token, onlyAvailable)
	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Another goroutine may have filled the slot while we waited on
		// the flight.
		if s := c.localSlot(onlyAvailable); s != nil && s.version == token && time.Now().Before(s.expiresAt) {
			return s.snapshot, nil
		}
		snapshot, err := c.builder.Build(ctx, onlyAvailable)
		if err != nil {
			return nil, err
		}
		c.sharedSet(ctx, token, onlyAvailable, snapshot)
		c.fillSlot(onlyAvailable, snapshot, token)
		return snapshot, nil
	})
	if err != nil {
		c.logger.WithError(err).Error("catalog snapshot rebuild failed")
		if s := c.localSlot(onlyAvailable); s != nil {
			return s.snapshot
		}
		return EmptySnapshot()
	}
	return result.(*Snapshot)
}

// Invalidate writes a new version token and drops the local tier. Call
// after every catalog mutation, before returning to the client.
func (c *Cache) Invalidate(ctx context.Context) error {
	oldToken, _ := c.currentVersion(ctx)

	newToken, err := c.versions.Bump(ctx)
	if err != nil {
		return err
	}

	c.tokenMu.Lock()
	c.token = newToken
	c.tokenExpiresAt = time.Now().Add(c.versionTTL)
	c.tokenMu.Unlock()

	c.mu.Lock()
	c.slots = make(map[bool]*slot)
	c.mu.Unlock()

	// Old shared entries expire on their own TTL; deleting them now is
	// just tidier.
	if oldToken != "" {
		if err := c.redis.Del(ctx, c.sharedKey(oldToken, true), c.sharedKey(oldToken, false)).Err(); err != nil {
			c.logger.WithError(err).Debug("failed to delete stale shared catalog entries")
		}
	}
	return nil
}

// currentVersion returns the durable version token, reading through a
// short-lived local copy so hot reads do not hit MongoDB.
func (c *Cache) currentVersion(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	if c.token != "" && time.Now().Before(c.tokenExpiresAt) {
		token := c.token
		c.tokenMu.Unlock()
		return token, nil
	}
	c.tokenMu.Unlock()

	token, err := c.versions.Current(ctx)
	if err != nil {
		return "", err
	}

	c.tokenMu.Lock()
	c.token = token
	c.tokenExpiresAt = time.Now().Add(c.versionTTL)
	c.tokenMu.Unlock()
	return token, nil
}

func (c *Cache) localSlot(onlyAvailable bool) *slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slots[onlyAvailable]
}

func (c *Cache) fillSlot(onlyAvailable bool, snapshot *Snapshot, version string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots[onlyAvailable] = &slot{
		snapshot:  snapshot,
		version:   version,
		expiresAt: time.Now().Add(c.snapshotTTL),
	}
}

type sharedEntry struct {
	Categories []CategoryEntry `json:"categories"`
	Products   []Entry         `json:"products"`
	Hash       string          `json:"hash"`
}

func (c *Cache) sharedKey(token string, onlyAvailable bool) string {
	return fmt.Sprintf("catalog:v:%s:%t", token, onlyAvailable)
}

func (c *Cache) sharedGet(ctx context.Context, token string, onlyAvailable bool) *Snapshot {
	data, err := c.redis.Get(ctx, c.sharedKey(token, onlyAvailable)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).Warn("shared catalog tier read failed")
		}
		return nil
	}
	var entry sharedEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.WithError(err).Warn("shared catalog tier entry corrupt")
		return nil
	}
	return &Snapshot{Categories: entry.Categories, Products: entry.Products, Hash: entry.Hash}
}

func (c *Cache) sharedSet(ctx context.Context, token string, onlyAvailable bool, snapshot *Snapshot) {
	data, err := json.Marshal(sharedEntry{
		Categories: snapshot.Categories,
		Products:   snapshot.Products,
		Hash:       snapshot.Hash,
	})
	if err != nil {
		c.logger.WithError(err).Warn("failed to encode catalog snapshot for shared tier")
		return
	}
	// Jitter spreads expiry so instances do not rebuild in lockstep.
	ttl := c.snapshotTTL + time.Duration(rand.Int63n(int64(c.snapshotTTL/10)+1))
	if err := c.redis.Set(ctx, c.sharedKey(token, onlyAvailable), data, ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("shared catalog tier write failed")
	}
}

// mongoVersions stores the version token in a single catalog_meta
// document so every instance agrees on it.
type mongoVersions struct {
	meta *mongo.Collection
}

func (v *mongoVersions) Current(ctx context.Context) (string, error) {
	var doc struct {
		Version string `bson:"version"`
	}
	err := v.meta.FindOne(ctx, bson.M{"_id": versionDocID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// First boot: seed the token. A concurrent seeder may win the
		// upsert, so read the stored value back instead of trusting ours.
		_, err = v.meta.UpdateOne(ctx,
			bson.M{"_id": versionDocID},
			bson.M{"$setOnInsert": bson.M{"version": uuid.New().String(), "updated_at": time.Now().UTC()}},
			options.Update().SetUpsert(true),
		)
		if err == nil {
			err = v.meta.FindOne(ctx, bson.M{"_id": versionDocID}).Decode(&doc)
		}
	}
	if err != nil {
		return "", fmt.Errorf("failed to read catalog version: %w", err)
	}
	return doc.Version, nil
}

func (v *mongoVersions) Bump(ctx context.Context) (string, error) {
	token := uuid.New().String()
	_, err := v.meta.UpdateOne(ctx,
		bson.M{"_id": versionDocID},
		bson.M{"$set": bson.M{"version": token, "updated_at": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return "", fmt.Errorf("failed to bump catalog version: %w", err)
	}
	return token, nil
}
