package store

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/betterme/internal/domain"
)

func TestRedisStateStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	s, err := NewRedisStateStore(addr, "betterme:test:"+uuid.NewString()+":", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	fresh, err := s.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, fresh.History)

	fresh.Mode = domain.ModePlanBuild
	fresh.PlanBuild.Step = domain.StepDiscovery
	require.NoError(t, s.Save(ctx, "alice", fresh))

	got, err := s.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.ModePlanBuild, got.Mode)
	assert.Equal(t, domain.StepDiscovery, got.PlanBuild.Step)

	require.NoError(t, s.Save(ctx, "bob", domain.NewUserState()))
	ids, err := s.UserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, ids)
	assert.NoError(t, s.Ping(ctx))
}
