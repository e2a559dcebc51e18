package core

import "sync/atomic"

// EnqueueOrder is a monotonically increasing sequence number assigned when a
// task enters the scheduling pipeline. It establishes a global FIFO order
// across all queues and is used as the tie-breaking key inside WorkQueueSets.
type EnqueueOrder uint64

// EnqueueOrderNone means "no order assigned yet" (e.g. a delayed task that has
// not become ready).
const EnqueueOrderNone EnqueueOrder = 0

// EnqueueOrderGenerator hands out unique, strictly increasing EnqueueOrders.
// It is safe for concurrent use and is passed explicitly to the components
// that enqueue tasks rather than living in ambient global state.
type EnqueueOrderGenerator struct {
	next atomic.Uint64
}

// NewEnqueueOrderGenerator creates a generator whose first order is 1.
func NewEnqueueOrderGenerator() *EnqueueOrderGenerator {
	g := &EnqueueOrderGenerator{}
	g.next.Store(uint64(EnqueueOrderNone) + 1)
	return g
}

// GenerateNext returns the next EnqueueOrder. No two calls ever return the
// same value, and later calls always return strictly larger values.
func (g *EnqueueOrderGenerator) GenerateNext() EnqueueOrder {
	return EnqueueOrder(g.next.Add(1) - 1)
}
