package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"login-guard/internal/repository"
	"login-guard/internal/repository/memory"
)

func TestScoped_IsolatesClients(t *testing.T) {
	ctx := context.Background()
	base := memory.NewStore()
	a := repository.NewScoped(base, "guard:a")
	b := repository.NewScoped(base, "guard:b")

	require.NoError(t, a.Set(ctx, "failureCount", "2"))

	v, ok, err := a.Get(ctx, "failureCount")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", v)

	_, ok, err = b.Get(ctx, "failureCount")
	require.NoError(t, err)
	assert.False(t, ok)

	raw, ok, _ := base.Get(ctx, "guard:a:failureCount")
	assert.True(t, ok)
	assert.Equal(t, "2", raw)

	require.NoError(t, a.Remove(ctx, "failureCount"))
	_, ok, _ = a.Get(ctx, "failureCount")
	assert.False(t, ok)
}
