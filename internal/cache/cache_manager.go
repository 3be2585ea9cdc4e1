package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/karlseguin/ccache/v2"
	"github.com/sirupsen/logrus"
)

// Recorder receives cache lookup outcomes
type Recorder interface {
	RecordCacheOperation(operation string, hit bool, duration time.Duration)
}

// Manager caches encoded analytics results in a local ccache and, when
// configured, a distributed level shared between instances
type Manager struct {
	localCache       *ccache.Cache
	distributedCache Distributed
	config           *Config
	metrics          *Metrics
	recorder         Recorder
	logger           *logrus.Logger
}

// Config represents cache configuration
type Config struct {
	LocalTTL          time.Duration
	DistributedTTL    time.Duration
	MaxLocalSize      int64
	LocalItemsToPrune uint32
	KeyPrefix         string
}

// DefaultConfig returns default cache configuration
func DefaultConfig() *Config {
	return &Config{
		LocalTTL:          30 * time.Minute,
		DistributedTTL:    2 * time.Hour,
		MaxLocalSize:      500,
		LocalItemsToPrune: 50,
		KeyPrefix:         "rx",
	}
}

// Metrics tracks cache performance
type Metrics struct {
	LocalHits         int64
	LocalMisses       int64
	DistributedHits   int64
	DistributedMisses int64
	Errors            int64
	TotalOperations   int64
	mu                sync.RWMutex
}

// Stats is a snapshot of cache performance
type Stats struct {
	LocalHits            int64   `json:"local_hits"`
	LocalMisses          int64   `json:"local_misses"`
	LocalHitRate         float64 `json:"local_hit_rate"`
	LocalSize            int64   `json:"local_size"`
	LocalMaxSize         int64   `json:"local_max_size"`
	DistributedHits      int64   `json:"distributed_hits"`
	DistributedMisses    int64   `json:"distributed_misses"`
	DistributedHitRate   float64 `json:"distributed_hit_rate"`
	Errors               int64   `json:"errors"`
	TotalOperations      int64   `json:"total_operations"`
	DistributedConnected bool    `json:"distributed_connected"`
}

// NewManager creates a new cache manager. distributed may be nil.
func NewManager(config *Config, distributed Distributed, logger *logrus.Logger) *Manager {
	if config == nil {
		config = DefaultConfig()
	}

	// Configure local cache (CCache)
	localCache := ccache.New(ccache.Configure().
		MaxSize(config.MaxLocalSize).
		ItemsToPrune(config.LocalItemsToPrune).
		DeleteBuffer(256).
		PromoteBuffer(256).
		GetsPerPromote(3))

	return &Manager{
		localCache:       localCache,
		distributedCache: distributed,
		config:           config,
		metrics:          &Metrics{},
		logger:           logger,
	}
}

// SetRecorder forwards lookup outcomes to r
func (cm *Manager) SetRecorder(r Recorder) {
	cm.recorder = r
}

// Get decodes the cached value for key into dest, local level first
func (cm *Manager) Get(ctx context.Context, key string, dest interface{}) bool {
	start := time.Now()
	cm.incrementTotalOperations()

	fullKey := cm.buildKey(key)

	// 1. Try local cache first
	if item := cm.localCache.Get(fullKey); item != nil && !item.Expired() {
		if data, ok := item.Value().([]byte); ok && json.Unmarshal(data, dest) == nil {
			cm.incrementLocalHits()
			cm.record(true, start)
			cm.logger.WithFields(logrus.Fields{
				"key":    key,
				"source": "local",
			}).Debug("Cache hit")
			return true
		}
	}

	cm.incrementLocalMisses()

	// 2. Try distributed cache
	if cm.distributedCache != nil {
		select {
		case <-ctx.Done():
			cm.record(false, start)
			return false
		default:
		}

		data, err := cm.distributedCache.Get(ctx, fullKey)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, dest); err == nil {
				// Store in local cache for faster subsequent access
				cm.localCache.Set(fullKey, data, cm.config.LocalTTL)

				cm.incrementDistributedHits()
				cm.record(true, start)
				cm.logger.WithFields(logrus.Fields{
					"key":    key,
					"source": "distributed",
				}).Debug("Cache hit")
				return true
			} else {
				cm.incrementErrors()
				cm.logger.WithFields(logrus.Fields{
					"key":   key,
					"error": err,
				}).Error("Failed to unmarshal cache entry")
			}
		case !errors.Is(err, ErrNotFound):
			cm.incrementErrors()
			cm.logger.WithFields(logrus.Fields{
				"key":   key,
				"error": err,
			}).Warn("Distributed cache read failed")
		}
		cm.incrementDistributedMisses()
	}

	cm.record(false, start)
	cm.logger.WithField("key", key).Debug("Cache miss")
	return false
}

// Set stores a value in both local and distributed cache. A zero ttl uses
// the configured defaults.
func (cm *Manager) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	cm.incrementTotalOperations()

	fullKey := cm.buildKey(key)

	data, err := json.Marshal(value)
	if err != nil {
		cm.incrementErrors()
		cm.logger.WithFields(logrus.Fields{
			"key":   key,
			"error": err,
		}).Error("Failed to marshal cache entry")
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	localTTL, distributedTTL := cm.config.LocalTTL, cm.config.DistributedTTL
	if ttl > 0 {
		localTTL, distributedTTL = ttl, ttl
	}

	// Store in local cache
	cm.localCache.Set(fullKey, data, localTTL)

	// Store in distributed cache if available
	if cm.distributedCache != nil {
		if err := cm.distributedCache.Set(ctx, fullKey, data, distributedTTL); err != nil {
			cm.incrementErrors()
			cm.logger.WithFields(logrus.Fields{
				"key":   key,
				"error": err,
			}).Error("Failed to set distributed cache")
			// Don't return error - local cache still works
		}
	}

	cm.logger.WithFields(logrus.Fields{
		"key":   key,
		"bytes": len(data),
	}).Debug("Cache set")

	return nil
}

// Delete removes a key from both caches
func (cm *Manager) Delete(ctx context.Context, key string) error {
	cm.incrementTotalOperations()

	fullKey := cm.buildKey(key)
	cm.localCache.Delete(fullKey)

	if cm.distributedCache != nil {
		if err := cm.distributedCache.Delete(ctx, fullKey); err != nil {
			cm.incrementErrors()
			cm.logger.WithFields(logrus.Fields{
				"key":   key,
				"error": err,
			}).Error("Failed to delete from distributed cache")
		}
	}

	cm.logger.WithField("key", key).Debug("Cache delete")
	return nil
}

// InvalidatePrefix removes all keys starting with prefix
func (cm *Manager) InvalidatePrefix(ctx context.Context, prefix string) error {
	cm.incrementTotalOperations()

	fullPrefix := cm.buildKey(prefix)
	cm.localCache.DeletePrefix(fullPrefix)

	if cm.distributedCache != nil {
		if err := cm.distributedCache.DeletePrefix(ctx, fullPrefix); err != nil {
			cm.incrementErrors()
			return fmt.Errorf("failed to invalidate distributed prefix: %w", err)
		}
	}

	cm.logger.WithField("prefix", prefix).Info("Cache prefix invalidated")
	return nil
}

// Clear removes all entries under the key prefix from both caches
func (cm *Manager) Clear(ctx context.Context) error {
	cm.incrementTotalOperations()

	cm.localCache.Clear()

	if cm.distributedCache != nil {
		if err := cm.distributedCache.DeletePrefix(ctx, cm.buildKey("")); err != nil {
			cm.incrementErrors()
			cm.logger.WithError(err).Error("Failed to clear distributed cache")
			return fmt.Errorf("failed to clear distributed cache: %w", err)
		}
	}

	cm.logger.Info("All caches cleared")
	return nil
}

// GetStats returns cache statistics
func (cm *Manager) GetStats() *Stats {
	cm.metrics.mu.RLock()
	defer cm.metrics.mu.RUnlock()

	var localHitRate, distributedHitRate float64
	totalLocalRequests := cm.metrics.LocalHits + cm.metrics.LocalMisses
	if totalLocalRequests > 0 {
		localHitRate = float64(cm.metrics.LocalHits) / float64(totalLocalRequests)
	}

	totalDistributedRequests := cm.metrics.DistributedHits + cm.metrics.DistributedMisses
	if totalDistributedRequests > 0 {
		distributedHitRate = float64(cm.metrics.DistributedHits) / float64(totalDistributedRequests)
	}

	return &Stats{
		LocalHits:            cm.metrics.LocalHits,
		LocalMisses:          cm.metrics.LocalMisses,
		LocalHitRate:         localHitRate,
		LocalSize:            int64(cm.localCache.ItemCount()),
		LocalMaxSize:         cm.config.MaxLocalSize,
		DistributedHits:      cm.metrics.DistributedHits,
		DistributedMisses:    cm.metrics.DistributedMisses,
		DistributedHitRate:   distributedHitRate,
		Errors:               cm.metrics.Errors,
		TotalOperations:      cm.metrics.TotalOperations,
		DistributedConnected: cm.distributedCache != nil,
	}
}

// Ping checks if both caches are available
func (cm *Manager) Ping(ctx context.Context) error {
	testKey := cm.buildKey("ping_test")

	cm.localCache.Set(testKey, []byte("ping"), time.Minute)
	if item := cm.localCache.Get(testKey); item == nil {
		return fmt.Errorf("local cache ping failed")
	}
	cm.localCache.Delete(testKey)

	if cm.distributedCache != nil {
		if err := cm.distributedCache.Ping(ctx); err != nil {
			return fmt.Errorf("distributed cache ping failed: %w", err)
		}
	}

	return nil
}

// Close closes the cache manager
func (cm *Manager) Close() error {
	if cm.localCache != nil {
		cm.localCache.Stop()
	}
	if cm.distributedCache != nil {
		return cm.distributedCache.Close()
	}
	return nil
}

// Key joins parts into a cache key
func Key(parts ...interface{}) string {
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = fmt.Sprint(p)
	}
	return strings.Join(s, ":")
}

// Helper methods

func (cm *Manager) buildKey(key string) string {
	if cm.config.KeyPrefix == "" {
		return key
	}
	return cm.config.KeyPrefix + ":" + key
}

func (cm *Manager) record(hit bool, start time.Time) {
	if cm.recorder != nil {
		cm.recorder.RecordCacheOperation("get", hit, time.Since(start))
	}
}

func (cm *Manager) incrementLocalHits() {
	cm.metrics.mu.Lock()
	cm.metrics.LocalHits++
	cm.metrics.mu.Unlock()
}

func (cm *Manager) incrementLocalMisses() {
	cm.metrics.mu.Lock()
	cm.metrics.LocalMisses++
	cm.metrics.mu.Unlock()
}

func (cm *Manager) incrementDistributedHits() {
	cm.metrics.mu.Lock()
	cm.metrics.DistributedHits++
	cm.metrics.mu.Unlock()
}

func (cm *Manager) incrementDistributedMisses() {
	cm.metrics.mu.Lock()
	cm.metrics.DistributedMisses++
	cm.metrics.mu.Unlock()
}

func (cm *Manager) incrementErrors() {
	cm.metrics.mu.Lock()
	cm.metrics.Errors++
	cm.metrics.mu.Unlock()
}

func (cm *Manager) incrementTotalOperations() {
	cm.metrics.mu.Lock()
	cm.metrics.TotalOperations++
	cm.metrics.mu.Unlock()
}
