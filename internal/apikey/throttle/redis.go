package throttle

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	id "likeness/pkg/domain"
)

const touchKeyPrefix = "likeness:apikey:touch:"

// Redis shares the throttle window across replicas. The first replica to set
// the marker in a window performs the write.
type Redis struct {
	client   redis.Cmdable
	interval time.Duration
}

func NewRedis(client redis.Cmdable, interval time.Duration) *Redis {
	return &Redis{client: client, interval: interval}
}

func (t *Redis) Acquire(ctx context.Context, keyID id.APIKeyID) (bool, error) {
	return t.client.SetNX(ctx, touchKeyPrefix+keyID.String(), "1", t.interval).Result()
}
