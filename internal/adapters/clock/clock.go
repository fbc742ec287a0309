// Package clock provee las fuentes de tiempo de las ventanas de fase.
package clock

import (
	"sync/atomic"
	"time"
)

// System lee el reloj de la máquina.
type System struct{}

func (System) Now() int64 { return time.Now().Unix() }

// Fixed es un reloj manual para tests y simulaciones.
type Fixed struct {
	now atomic.Int64
}

// NewFixed crea un reloj parado en now (unix seconds).
func NewFixed(now int64) *Fixed {
	f := &Fixed{}
	f.now.Store(now)
	return f
}

func (f *Fixed) Now() int64 { return f.now.Load() }

// Set mueve el reloj a t.
func (f *Fixed) Set(t int64) { f.now.Store(t) }

// Advance suma d (redondeado a segundos) y devuelve el nuevo instante.
func (f *Fixed) Advance(d time.Duration) int64 {
	return f.now.Add(int64(d / time.Second))
}
