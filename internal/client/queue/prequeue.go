package queue

import (
	"sync"

	"github.com/dmitrijs2005/casekeeper/internal/client/models"
)

// PreQueue buffers operations submitted while nobody is signed in. It
// lives in memory only: without a session there is no key to encrypt it.
type PreQueue struct {
	mu  sync.Mutex
	ops []models.Operation
}

func NewPreQueue() *PreQueue {
	return &PreQueue{}
}

func (p *PreQueue) Push(op models.Operation) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, op)
	return len(p.ops)
}

// Peek returns a copy of the buffered operations, oldest first.
func (p *PreQueue) Peek() []models.Operation {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Operation, len(p.ops))
	copy(out, p.ops)
	return out
}

func (p *PreQueue) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ops)
}

// dropFirst removes the n oldest operations and returns how many remain.
func (p *PreQueue) dropFirst(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n = min(n, len(p.ops))
	p.ops = append(p.ops[:0:0], p.ops[n:]...)
	return len(p.ops)
}
