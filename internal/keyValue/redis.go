package keyValue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// the window starts on the first hit, later hits keep its expiry
var incrScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

type Redis struct {
	client *redis.Client
	sugar  *zap.SugaredLogger
}

func NewRedis(client *redis.Client, sugar *zap.SugaredLogger) *Redis {
	return &Redis{client: client, sugar: sugar}
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	r.sugar.Debugf("Getting value of key [%s] from redis", key)

	value, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	} else if err != nil {
		return "", err
	}

	return value, nil
}

func (r *Redis) GetDel(ctx context.Context, key string) (string, error) {
	r.sugar.Debugf("Getting and deleting value of key [%s] from redis", key)

	value, err := r.client.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	} else if err != nil {
		return "", err
	}

	return value, nil
}

func (r *Redis) Set(ctx context.Context, key string, value string, expires time.Duration) error {
	r.sugar.Debugf("Setting value of key [%s] in redis", key)
	return r.client.Set(ctx, key, value, expires).Err()
}

func (r *Redis) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *Redis) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	res, err := incrScript.Run(ctx, r.client, []string{key}, window.Milliseconds()).Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("unexpected incr script result: %v", res)
	}

	count, ok := res[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected incr count type %T", res[0])
	}
	ttl, ok := res[1].(int64)
	if !ok || ttl < 0 {
		ttl = window.Milliseconds()
	}

	return count, time.Duration(ttl) * time.Millisecond, nil
}
