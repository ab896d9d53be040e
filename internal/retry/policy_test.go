package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBlocked = errors.New("blocked")

func TestShouldRetry(t *testing.T) {
	p := NewExponentialPolicy(3, time.Millisecond, 10*time.Millisecond, errBlocked)

	assert.False(t, p.ShouldRetry(nil, 1))
	assert.True(t, p.ShouldRetry(errors.New("boom"), 1))
	assert.True(t, p.ShouldRetry(errors.New("boom"), 2))
	assert.False(t, p.ShouldRetry(errors.New("boom"), 3))
	assert.False(t, p.ShouldRetry(context.Canceled, 1))
	assert.False(t, p.ShouldRetry(context.DeadlineExceeded, 1))
	assert.False(t, p.ShouldRetry(errors.Join(errors.New("wrapped"), errBlocked), 1))
}

func TestBackoffBounds(t *testing.T) {
	p := NewExponentialPolicy(5, 100*time.Millisecond, 400*time.Millisecond)

	for attempt := 1; attempt <= 5; attempt++ {
		d := p.Backoff(attempt)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 400*time.Millisecond)
	}
}

func TestNewExponentialPolicyDefaults(t *testing.T) {
	p := NewExponentialPolicy(0, 0, 0)
	assert.Equal(t, 1, p.MaxAttempts())
	assert.False(t, p.ShouldRetry(errors.New("boom"), 1))
}

func TestDo(t *testing.T) {
	p := NewExponentialPolicy(3, time.Millisecond, 2*time.Millisecond, errBlocked)

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), p, func(ctx context.Context, attempt int) error {
			calls++
			if attempt < 3 {
				return errors.New("transient")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), p, func(ctx context.Context, attempt int) error {
			calls++
			return errors.New("still failing")
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
		assert.Contains(t, err.Error(), "failed after 3 attempts")
	})

	t.Run("terminal error returned unwrapped on first attempt", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), p, func(ctx context.Context, attempt int) error {
			calls++
			return errBlocked
		})
		assert.Equal(t, errBlocked, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("context canceled during backoff", func(t *testing.T) {
		slow := NewExponentialPolicy(3, time.Hour, time.Hour)
		ctx, cancel := context.WithCancel(context.Background())
		err := Do(ctx, slow, func(ctx context.Context, attempt int) error {
			cancel()
			return errors.New("transient")
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
