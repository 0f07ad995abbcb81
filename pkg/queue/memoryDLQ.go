package queue

import (
	"context"
	"sort"
	"sync"

	"github.com/ds124wfegd/chess-payments/internal/entity"
)

// MemoryDLQ is the DLQ used when Redis is not configured.
type MemoryDLQ struct {
	mu    sync.Mutex
	items map[string]*entity.FailedNotification
}

func NewMemoryDLQ() *MemoryDLQ {
	return &MemoryDLQ{items: make(map[string]*entity.FailedNotification)}
}

func (d *MemoryDLQ) Push(_ context.Context, n *entity.FailedNotification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := *n
	d.items[n.ID] = &c
	return nil
}

func (d *MemoryDLQ) List(_ context.Context, limit int) ([]*entity.FailedNotification, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*entity.FailedNotification, 0, len(d.items))
	for _, n := range d.items {
		c := *n
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FailedAt.After(out[j].FailedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *MemoryDLQ) Get(_ context.Context, id string) (*entity.FailedNotification, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.items[id]
	if !ok {
		return nil, entity.ErrNotificationNotFound
	}
	c := *n
	return &c, nil
}

func (d *MemoryDLQ) Delete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.items[id]; !ok {
		return entity.ErrNotificationNotFound
	}
	delete(d.items, id)
	return nil
}

func (d *MemoryDLQ) Stats(_ context.Context) (*entity.DLQStats, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	stats := &entity.DLQStats{QueueSize: int64(len(d.items))}
	for _, n := range d.items {
		if stats.OldestFailure.IsZero() || n.FailedAt.Before(stats.OldestFailure) {
			stats.OldestFailure = n.FailedAt
		}
		if n.FailedAt.After(stats.NewestFailure) {
			stats.NewestFailure = n.FailedAt
		}
	}
	return stats, nil
}
