package presence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	onlineKeyPrefix    = "presence:online:"
	availableKeyPrefix = "presence:available:"
)

// Tracker keeps specialist presence in Redis. Online means the user has a
// live session; available means the specialist is accepting new work.
// Both expire unless the heartbeat is refreshed.
type Tracker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTracker constructs a tracker. A nil client disables presence: everyone
// is treated as online and available.
func NewTracker(client *redis.Client, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Tracker{client: client, ttl: ttl}
}

// Heartbeat refreshes the online marker for a user.
func (t *Tracker) Heartbeat(ctx context.Context, userID string) error {
	if t.client == nil {
		return nil
	}
	return t.client.Set(ctx, onlineKeyPrefix+userID, "1", t.ttl).Err()
}

// SetAvailable marks a specialist as accepting assignments. The marker
// shares the heartbeat TTL so a crashed session drops out of rotation.
func (t *Tracker) SetAvailable(ctx context.Context, userID string, available bool) error {
	if t.client == nil {
		return nil
	}
	key := availableKeyPrefix + userID
	if !available {
		return t.client.Del(ctx, key).Err()
	}
	return t.client.Set(ctx, key, "1", t.ttl).Err()
}

// IsOnline reports whether the user currently holds a live session.
func (t *Tracker) IsOnline(ctx context.Context, userID string) (bool, error) {
	if t.client == nil {
		return true, nil
	}
	n, err := t.client.Exists(ctx, onlineKeyPrefix+userID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IsAvailable reports whether the specialist is accepting assignments.
// Satisfies the workflow dispatch eligibility check.
func (t *Tracker) IsAvailable(ctx context.Context, userID string) (bool, error) {
	if t.client == nil {
		return true, nil
	}
	n, err := t.client.Exists(ctx, availableKeyPrefix+userID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
