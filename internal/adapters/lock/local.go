// Package lock implementa ports.Locker dentro de un único proceso.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/alejandrodnm/oods/internal/ports"
)

// Local serializa escritores por clave con un canal de capacidad 1 por clave.
// El ttl se ignora: el lock vive lo que viva el proceso.
type Local struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

var _ ports.Locker = (*Local)(nil)

func NewLocal() *Local {
	return &Local{slots: make(map[string]chan struct{})}
}

func (l *Local) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

// Acquire bloquea hasta obtener la clave o hasta que ctx se cancele.
func (l *Local) Acquire(ctx context.Context, key string, _ time.Duration) (func(), error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() { once.Do(func() { <-ch }) }, nil
}
