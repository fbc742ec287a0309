package redisbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alejandrodnm/oods/internal/domain"
	"github.com/alejandrodnm/oods/internal/ports"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockLua borra la clave solo si sigue teniendo nuestro token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager implementa ports.Locker con SET NX + TTL entre procesos.
type LockManager struct {
	rdb      *redis.Client
	unlockSc *redis.Script
}

var _ ports.Locker = (*LockManager)(nil)

func NewLockManager(c *Client) *LockManager {
	return &LockManager{rdb: c.rdb, unlockSc: redis.NewScript(unlockLua)}
}

func lockKey(key string) string {
	return "oods:lock:" + key
}

// Acquire intenta tomar el lock una vez. Si otro lo tiene devuelve un error
// de tipo domain.ErrConflict; quien llama decide si reintentar (el servicio no lo hace).
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	lk := lockKey(key)

	ok, err := lm.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redisbus.Acquire: %s: %w", key, err)
	}
	if !ok {
		return nil, domain.Errorf(domain.KindConflict, "lock", "%s is held by another writer", key)
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			// contexto propio: el del caller puede estar cancelado
			uctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = lm.unlockSc.Run(uctx, lm.rdb, []string{lk}, token).Err()
		})
	}
	return unlock, nil
}
