package queue

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/ds124wfegd/chess-payments/internal/entity"
)

// RetryManager manages retry logic for failed notification sends
type RetryManager struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRetryManager creates a new RetryManager
func NewRetryManager(maxRetries int, baseDelay time.Duration) *RetryManager {
	return &RetryManager{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   baseDelay * 16, // Maximum 16x base delay
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *RetryManager) MaxRetries() int {
	return r.maxRetries
}

// ShouldRetry decides whether another attempt follows the given number of
// completed attempts and returns the delay before it.
func (r *RetryManager) ShouldRetry(attempts int, err error) (bool, time.Duration) {
	if attempts > r.maxRetries {
		return false, 0
	}
	if !r.isRetryableError(err) {
		return false, 0
	}
	return true, r.calculateBackoff(attempts)
}

// isRetryableError determines if an error is retryable
func (r *RetryManager) isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, entity.ErrRecipientMissing) ||
		errors.Is(err, entity.ErrInvalidInput) {
		return false
	}

	nonRetryableErrors := []string{
		"invalid",
		"not found",
		"permission denied",
		"forbidden",
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range nonRetryableErrors {
		if strings.Contains(errStr, pattern) {
			return false
		}
	}
	return true
}

// calculateBackoff calculates exponential backoff delay with jitter
func (r *RetryManager) calculateBackoff(attempt int) time.Duration {
	if attempt <= 0 || r.baseDelay <= 0 {
		return r.baseDelay
	}

	// Exponential backoff: base * 2^(attempt-1)
	backoff := r.baseDelay << uint(attempt-1)
	if backoff <= 0 || backoff > r.maxDelay {
		backoff = r.maxDelay
	}

	// Apply jitter (±25%)
	if quarter := int64(backoff / 4); quarter > 0 {
		r.mu.Lock()
		jitter := time.Duration(r.rnd.Int63n(2*quarter+1) - quarter)
		r.mu.Unlock()
		backoff += jitter
	}

	if backoff > r.maxDelay {
		backoff = r.maxDelay
	}
	return backoff
}
