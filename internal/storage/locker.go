package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"helpqueue/internal/queue"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const lockKeyPrefix = "helpqueue:lock:"

// Снимаем блокировку, только если она все еще наша.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker блокировка предмета между экземплярами сервиса (SET NX PX).
// Внутри процесса ожидающие стоят на локальной блокировке, в Redis идет только владелец.
// Если операция переживет TTL, запись все равно отклонит проверка версии в Store.
type RedisLocker struct {
	rdb   *redis.Client
	ttl   time.Duration
	poll  time.Duration
	local *queue.LocalLocker
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &RedisLocker{rdb: rdb, ttl: ttl, poll: 10 * time.Millisecond, local: queue.NewLocalLocker()}
}

func (l *RedisLocker) Lock(ctx context.Context, subject string) (func(), error) {
	unlockLocal, err := l.local.Lock(ctx, subject)
	if err != nil {
		return nil, err
	}

	key := lockKeyPrefix + subject
	token := uuid.NewString()
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			unlockLocal()
			return nil, fmt.Errorf("%w: redis lock %s: %w", queue.ErrStorageUnavailable, subject, err)
		}
		if ok {
			break
		}
		t := time.NewTimer(l.poll)
		select {
		case <-ctx.Done():
			t.Stop()
			unlockLocal()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	return func() {
		// Снимаем даже если ctx запроса уже отменен.
		rctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.rdb, []string{key}, token).Err(); err != nil {
			log.Printf("Ошибка снятия блокировки %s: %v", key, err)
		}
		unlockLocal()
	}, nil
}
