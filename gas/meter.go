// Package gas implements the per-invocation gas meter: gas is set
// before each call to handle() and read back after; exhaustion
// converts the in-flight call's result into errs.GasFeeExhausted and
// zeroes the remaining balance.
package gas

import (
	"sync/atomic"

	"github.com/actorxio/actorx/errs"
)

// Meter tracks a guest instance's remaining gas across a single
// handle() turn. It is safe for concurrent use, though in practice
// exactly one channel drives handle() on a given worker instance at a
// time.
type Meter struct {
	remaining atomic.Uint64
	exhausted atomic.Bool
}

// NewMeter returns a Meter with the given starting balance.
func NewMeter(limit uint64) *Meter {
	m := &Meter{}
	m.remaining.Store(limit)
	return m
}

// Reset rearms the meter with a fresh balance before the next
// handle() call.
func (m *Meter) Reset(limit uint64) {
	m.remaining.Store(limit)
	m.exhausted.Store(false)
}

// Remaining returns the current balance.
func (m *Meter) Remaining() uint64 {
	return m.remaining.Load()
}

// Exhausted reports whether the meter has hit zero.
func (m *Meter) Exhausted() bool {
	return m.exhausted.Load()
}

// Consume decrements the balance by cost; the balance only ever moves
// down within a turn. Once it would go negative it is clamped to zero
// and Exhausted() becomes true for the remainder of the turn.
func (m *Meter) Consume(cost uint64) {
	for {
		cur := m.remaining.Load()
		if cur == 0 {
			m.exhausted.Store(true)
			return
		}
		var next uint64
		if cost >= cur {
			next = 0
		} else {
			next = cur - cost
		}
		if m.remaining.CompareAndSwap(cur, next) {
			if next == 0 {
				m.exhausted.Store(true)
			}
			return
		}
	}
}

// Exhaust zeroes the balance immediately. The wall-clock backstop uses
// this when guest code burns time without crossing a call boundary the
// listener could meter (a flat spin loop fires no Before hooks).
func (m *Meter) Exhaust() {
	m.remaining.Store(0)
	m.exhausted.Store(true)
}

// CheckErr returns errs.GasFeeExhausted if the meter is exhausted, else
// nil. Callers use this immediately after a handle() call returns to
// map exhaustion into the error delivered to the original caller.
func (m *Meter) CheckErr(actor string) error {
	if m.Exhausted() {
		return errs.New(errs.KindGasFeeExhausted, "actor %s exhausted its gas budget", actor)
	}
	return nil
}
