package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sweeney/attention-monitor/internal/calibration"
)

// ThresholdCache keeps each subject's calibrated thresholds for a while so a
// new session for the same subject can skip the warm-up.
type ThresholdCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewThresholdCache creates a cache whose entries expire after ttl.
func NewThresholdCache(client *redis.Client, ttl time.Duration) *ThresholdCache {
	return &ThresholdCache{client: client, ttl: ttl}
}

func thresholdKey(subject string) string {
	return "attention:calibration:" + subject
}

// Save stores the thresholds of subject.
func (c *ThresholdCache) Save(ctx context.Context, subject string, t calibration.Thresholds) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, thresholdKey(subject), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("save thresholds for %s: %w", subject, err)
	}
	return nil
}

// Load returns the cached thresholds of subject. ok is false when none are
// cached or they expired.
func (c *ThresholdCache) Load(ctx context.Context, subject string) (t calibration.Thresholds, ok bool, err error) {
	payload, err := c.client.Get(ctx, thresholdKey(subject)).Bytes()
	if errors.Is(err, redis.Nil) {
		return calibration.Thresholds{}, false, nil
	}
	if err != nil {
		return calibration.Thresholds{}, false, fmt.Errorf("load thresholds for %s: %w", subject, err)
	}
	if err := json.Unmarshal(payload, &t); err != nil {
		return calibration.Thresholds{}, false, fmt.Errorf("decode thresholds for %s: %w", subject, err)
	}
	return t, true, nil
}

// Forget drops the cached thresholds of subject.
func (c *ThresholdCache) Forget(ctx context.Context, subject string) error {
	return c.client.Del(ctx, thresholdKey(subject)).Err()
}
