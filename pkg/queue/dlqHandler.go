package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ds124wfegd/chess-payments/internal/entity"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RedisDLQ keeps failed notifications for manual resend. Ids live in a sorted
// set scored by failure time, bodies in a hash keyed by id.
type RedisDLQ struct {
	client *redis.Client
	index  string
	items  string
	log    logrus.FieldLogger
}

// NewRedisDLQ creates a new RedisDLQ under the given key prefix
func NewRedisDLQ(client *redis.Client, key string, log logrus.FieldLogger) *RedisDLQ {
	return &RedisDLQ{
		client: client,
		index:  key,
		items:  key + ":items",
		log:    log,
	}
}

// Push stores (or replaces) a failed notification
func (d *RedisDLQ) Push(ctx context.Context, n *entity.FailedNotification) error {
	if n.ID == "" {
		return fmt.Errorf("%w: failed notification without id", entity.ErrInvalidInput)
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal failed notification: %w", err)
	}

	score := float64(n.FailedAt.UnixNano()) / 1e9
	_, err = d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, d.items, n.ID, data)
		pipe.ZAdd(ctx, d.index, &redis.Z{Score: score, Member: n.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to push to DLQ: %w", err)
	}

	d.log.WithFields(logrus.Fields{
		"dlq_id":     n.ID,
		"booking_id": n.Intent.BookingID,
		"kind":       n.Intent.Kind,
	}).Warn("Notification moved to DLQ")
	return nil
}

// List returns failed notifications, newest first
func (d *RedisDLQ) List(ctx context.Context, limit int) ([]*entity.FailedNotification, error) {
	if limit <= 0 {
		limit = 50
	}

	ids, err := d.client.ZRevRange(ctx, d.index, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list DLQ: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	values, err := d.client.HMGet(ctx, d.items, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load DLQ items: %w", err)
	}

	failed := make([]*entity.FailedNotification, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			d.log.WithField("dlq_id", ids[i]).Warn("DLQ index points at missing item")
			continue
		}
		var n entity.FailedNotification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			d.log.WithError(err).WithField("dlq_id", ids[i]).Warn("Failed to unmarshal DLQ item")
			continue
		}
		failed = append(failed, &n)
	}
	return failed, nil
}

func (d *RedisDLQ) Get(ctx context.Context, id string) (*entity.FailedNotification, error) {
	raw, err := d.client.HGet(ctx, d.items, id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, entity.ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get DLQ item: %w", err)
	}

	var n entity.FailedNotification
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		return nil, fmt.Errorf("failed to unmarshal DLQ item: %w", err)
	}
	return &n, nil
}

// Delete permanently removes a failed notification
func (d *RedisDLQ) Delete(ctx context.Context, id string) error {
	var removed *redis.IntCmd
	_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.HDel(ctx, d.items, id)
		pipe.ZRem(ctx, d.index, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete DLQ item: %w", err)
	}
	if removed.Val() == 0 {
		return entity.ErrNotificationNotFound
	}
	return nil
}

// Stats returns statistics about the DLQ
func (d *RedisDLQ) Stats(ctx context.Context) (*entity.DLQStats, error) {
	count, err := d.client.ZCard(ctx, d.index).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get DLQ count: %w", err)
	}

	stats := &entity.DLQStats{QueueSize: count}
	if count == 0 {
		return stats, nil
	}

	oldest, err := d.client.ZRangeWithScores(ctx, d.index, 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get oldest failure: %w", err)
	}
	newest, err := d.client.ZRevRangeWithScores(ctx, d.index, 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get newest failure: %w", err)
	}

	if len(oldest) > 0 {
		stats.OldestFailure = scoreTime(oldest[0].Score)
	}
	if len(newest) > 0 {
		stats.NewestFailure = scoreTime(newest[0].Score)
	}
	return stats, nil
}

func scoreTime(score float64) time.Time {
	return time.Unix(0, int64(score*1e9)).UTC()
}
