package offline

import (
	"sync"

	"github.com/google/uuid"
)

// Projection tracks optimistic team-total deltas applied locally while
// writes sit in the queue. The values are provisional: after a clean drain
// the projection is discarded and authoritative totals are re-fetched.
type Projection struct {
	mu     sync.Mutex
	base   map[uuid.UUID]int
	deltas map[uuid.UUID]int
}

func NewProjection() *Projection {
	return &Projection{
		base:   make(map[uuid.UUID]int),
		deltas: make(map[uuid.UUID]int),
	}
}

// SetBase replaces the authoritative totals and clears all deltas.
func (p *Projection) SetBase(totals map[uuid.UUID]int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base = make(map[uuid.UUID]int, len(totals))
	for id, total := range totals {
		p.base[id] = total
	}
	p.deltas = make(map[uuid.UUID]int)
}

// Apply records an optimistic delta for immediate UI feedback.
func (p *Projection) Apply(teamID uuid.UUID, delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deltas[teamID] += delta
}

// Total returns the projected total for one team.
func (p *Projection) Total(teamID uuid.UUID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.base[teamID] + p.deltas[teamID]
}

// Totals returns projected totals for every known team.
func (p *Projection) Totals() map[uuid.UUID]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[uuid.UUID]int, len(p.base))
	for id, total := range p.base {
		out[id] = total + p.deltas[id]
	}
	for id, delta := range p.deltas {
		if _, ok := p.base[id]; !ok {
			out[id] = delta
		}
	}
	return out
}

// Dirty reports whether any optimistic delta is outstanding.
func (p *Projection) Dirty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.deltas) > 0
}
