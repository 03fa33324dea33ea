package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "likeness/pkg/domain"
)

func TestInMemory_Acquire(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	th := NewInMemory(time.Minute)
	th.now = func() time.Time { return now }

	keyA := id.APIKeyID(uuid.New())
	keyB := id.APIKeyID(uuid.New())

	ok, err := th.Acquire(ctx, keyA)
	require.NoError(t, err)
	assert.True(t, ok, "first use writes")

	ok, _ = th.Acquire(ctx, keyA)
	assert.False(t, ok, "second use inside the window is skipped")

	ok, _ = th.Acquire(ctx, keyB)
	assert.True(t, ok, "keys are throttled independently")

	now = now.Add(time.Minute)
	ok, _ = th.Acquire(ctx, keyA)
	assert.True(t, ok, "window elapsed")
}
