// Package pool holds the ordered candidate lists that generation draws audio
// references from. Pools are depleted strictly from the front and are never
// refilled during a run.
package pool

import (
	"fmt"
	"math/rand/v2"

	"github.com/himanishpuri/AccentAB/pkg/models"
)

// Pool is an ordered, mutable sequence of audio references.
type Pool struct {
	name  string
	items []models.AudioRef
}

// New creates a pool named for log messages. The refs slice is copied.
func New(name string, refs ...models.AudioRef) *Pool {
	items := make([]models.AudioRef, len(refs))
	copy(items, refs)
	return &Pool{name: name, items: items}
}

func (p *Pool) Name() string { return p.name }

func (p *Pool) Len() int { return len(p.items) }

// Items returns a copy of the remaining references in order.
func (p *Pool) Items() []models.AudioRef {
	out := make([]models.AudioRef, len(p.items))
	copy(out, p.items)
	return out
}

// Push appends refs at the back. It is only used while a pool is being filled.
func (p *Pool) Push(refs ...models.AudioRef) {
	p.items = append(p.items, refs...)
}

// Shuffle permutes the pool using rng. The same generator state and input
// order always yield the same permutation.
func (p *Pool) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(p.items), func(i, j int) {
		p.items[i], p.items[j] = p.items[j], p.items[i]
	})
}

// TakeQuota removes and returns the first n references, preserving order.
// When fewer than n remain, everything left is returned.
func (p *Pool) TakeQuota(n int) []models.AudioRef {
	if n <= 0 {
		return nil
	}
	if n > len(p.items) {
		n = len(p.items)
	}
	out := make([]models.AudioRef, n)
	copy(out, p.items[:n])
	p.items = p.items[n:]
	return out
}

// Split moves the first n references into a new pool.
func (p *Pool) Split(name string, n int) *Pool {
	return &Pool{name: name, items: p.TakeQuota(n)}
}

// Peek returns the front reference without removing it.
func (p *Pool) Peek() (models.AudioRef, error) {
	if len(p.items) == 0 {
		return models.AudioRef{}, fmt.Errorf("%s: %w", p.name, models.ErrExhaustedPool)
	}
	return p.items[0], nil
}

// PopFront removes and returns the front reference. It fails with
// models.ErrExhaustedPool when the pool is empty.
func (p *Pool) PopFront() (models.AudioRef, error) {
	ref, err := p.Peek()
	if err != nil {
		return ref, err
	}
	p.items[0] = models.AudioRef{}
	p.items = p.items[1:]
	return ref, nil
}

// Swap exchanges two positions. It is used by the distinctness enforcer.
func (p *Pool) Swap(i, j int) {
	p.items[i], p.items[j] = p.items[j], p.items[i]
}

// At returns the reference at position i.
func (p *Pool) At(i int) models.AudioRef { return p.items[i] }
