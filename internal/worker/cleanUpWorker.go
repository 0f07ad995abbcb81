package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type expirer interface {
	ExpireStalePending(ctx context.Context, checkoutTimeout time.Duration, batchSize int) (int, error)
}

// HoldSweeper cancels pending bookings whose checkout was abandoned without
// a checkout.session.expired event ever arriving.
type HoldSweeper struct {
	holds           expirer
	interval        time.Duration
	checkoutTimeout time.Duration
	batchSize       int
	log             logrus.FieldLogger
}

func NewHoldSweeper(holds expirer, interval, checkoutTimeout time.Duration, batchSize int, log logrus.FieldLogger) *HoldSweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &HoldSweeper{
		holds:           holds,
		interval:        interval,
		checkoutTimeout: checkoutTimeout,
		batchSize:       batchSize,
		log:             log.WithField("worker", "hold_sweeper"),
	}
}

func (w *HoldSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.WithFields(logrus.Fields{
		"interval":         w.interval.String(),
		"checkout_timeout": w.checkoutTimeout.String(),
	}).Info("Hold sweeper started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Hold sweeper stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep выполняет один проход; полные пачки обрабатываются до конца.
func (w *HoldSweeper) Sweep(ctx context.Context) int {
	total := 0
	for {
		expired, err := w.holds.ExpireStalePending(ctx, w.checkoutTimeout, w.batchSize)
		total += expired
		if err != nil {
			w.log.WithError(err).Error("Failed to expire stale bookings")
			break
		}
		if expired < w.batchSize {
			break
		}
	}

	if total > 0 {
		w.log.WithField("expired", total).Info("Expired abandoned bookings")
	} else {
		w.log.Debug("No abandoned bookings found")
	}
	return total
}
