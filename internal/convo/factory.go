package convo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// NewStore picks the conversation store driver: postgres when a pool is
// configured, redis when a client is, otherwise in-memory. Postgres wins
// when both are configured since it is the durable option.
func NewStore(ctx context.Context, pool *pgxpool.Pool, rdb *redis.Client) (Store, error) {
	if pool != nil {
		return NewPostgresStore(ctx, pool)
	}
	if rdb != nil {
		return NewRedisStore(ctx, rdb)
	}
	return NewInMemoryStore(), nil
}
