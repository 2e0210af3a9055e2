//go:build integration

package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"mantrip/internal/platform/config"
	"mantrip/pkg/testutil/containers"
)

func TestNewAgainstContainer(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	ctx := context.Background()

	client, err := New(ctx, config.RedisConfig{URL: rc.Addr, PoolSize: 2})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Health(ctx))
}
