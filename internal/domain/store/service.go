// internal/domain/store/service.go

// Package store manages the storefront open/closed switch.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	settingsDocID = "store"
	redisKey      = "store:status"
	localTTL      = 60 * time.Second
	redisTTL      = 5 * time.Minute
)

// StoreStatus represents the storefront availability switch
type StoreStatus struct {
	IsOpen        bool   `bson:"is_open" json:"is_open"`
	ClosedMessage string `bson:"closed_message" json:"closed_message,omitempty"`
}

// UpdateStatusRequest represents an admin toggle
type UpdateStatusRequest struct {
	IsOpen        *bool  `json:"is_open" binding:"required"`
	ClosedMessage string `json:"closed_message"`
}

// Service reads the switch through a local cache and Redis before
// touching MongoDB. A store that cannot be read is treated as open so a
// backend outage never blocks browsing.
type Service struct {
	settings *mongo.Collection
	redis    *redis.Client
	logger   *logrus.Logger

	mu        sync.Mutex
	cached    *StoreStatus
	expiresAt time.Time
}

// NewService creates a new store status service
func NewService(db *mongo.Database, redisClient *redis.Client, logger *logrus.Logger) *Service {
	return &Service{
		settings: db.Collection("store_settings"),
		redis:    redisClient,
		logger:   logger,
	}
}

// Status returns the current switch state
func (s *Service) Status(ctx context.Context) StoreStatus {
	s.mu.Lock()
	if s.cached != nil && time.Now().Before(s.expiresAt) {
		status := *s.cached
		s.mu.Unlock()
		return status
	}
	s.mu.Unlock()

	if status, ok := s.fromRedis(ctx); ok {
		s.fill(status)
		return status
	}

	var status StoreStatus
	err := s.settings.FindOne(ctx, bson.M{"_id": settingsDocID}).Decode(&status)
	if errors.Is(err, mongo.ErrNoDocuments) {
		status = StoreStatus{IsOpen: true}
	} else if err != nil {
		s.logger.WithError(err).Warn("failed to read store status, assuming open")
		return StoreStatus{IsOpen: true}
	}

	s.toRedis(ctx, status)
	s.fill(status)
	return status
}

// IsOpen reports the switch plus the message shown when closed
func (s *Service) IsOpen(ctx context.Context) (bool, string) {
	status := s.Status(ctx)
	return status.IsOpen, status.ClosedMessage
}

// Update persists the switch and drops both cache tiers
func (s *Service) Update(ctx context.Context, req UpdateStatusRequest) (StoreStatus, error) {
	status := StoreStatus{
		IsOpen:        *req.IsOpen,
		ClosedMessage: req.ClosedMessage,
	}
	_, err := s.settings.UpdateOne(ctx,
		bson.M{"_id": settingsDocID},
		bson.M{"$set": bson.M{
			"is_open":        status.IsOpen,
			"closed_message": status.ClosedMessage,
			"updated_at":     time.Now().UTC(),
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return StoreStatus{}, err
	}

	if err := s.redis.Del(ctx, redisKey).Err(); err != nil {
		s.logger.WithError(err).Warn("failed to drop store status from redis")
	}
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()

	return status, nil
}

func (s *Service) fill(status StoreStatus) {
	s.mu.Lock()
	s.cached = &status
	s.expiresAt = time.Now().Add(localTTL)
	s.mu.Unlock()
}

func (s *Service) fromRedis(ctx context.Context) (StoreStatus, bool) {
	var status StoreStatus
	data, err := s.redis.Get(ctx, redisKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.WithError(err).Debug("store status redis read failed")
		}
		return status, false
	}
	if err := json.Unmarshal(data, &status); err != nil {
		return status, false
	}
	return status, true
}

func (s *Service) toRedis(ctx context.Context, status StoreStatus) {
	data, err := json.Marshal(status)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, redisKey, data, redisTTL).Err(); err != nil {
		s.logger.WithError(err).Debug("store status redis write failed")
	}
}
