package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))

	ctx = WithRequestID(ctx, "req-123")
	assert.Equal(t, "req-123", RequestID(ctx))
}

func TestNow(t *testing.T) {
	t.Run("injected time wins", func(t *testing.T) {
		fixed := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
		assert.Equal(t, fixed, Now(WithTime(context.Background(), fixed)))
	})

	t.Run("falls back to wall clock", func(t *testing.T) {
		before := time.Now()
		got := Now(context.Background())
		assert.False(t, got.Before(before))
	})
}
