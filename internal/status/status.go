// Package status implements the process-wide AgentStatus gate. It is the only
// mutual-exclusion mechanism for user-initiated work: an operation must hold a
// Lease, and a Lease can only be taken while the gate is idle.
package status

import (
	"errors"
	"fmt"
	"sync"

	"atelier/internal/types"
)

var (
	ErrBusy              = errors.New("status: agent is busy")
	ErrInvalidTransition = errors.New("status: invalid transition")
	ErrReleased          = errors.New("status: lease already released")
)

// transitions lists every allowed (from, to) edge.
var transitions = map[types.AgentStatus][]types.AgentStatus{
	types.StatusIdle: {
		types.StatusThinking,
		types.StatusGenerating,
		types.StatusEditing,
		types.StatusAnalyzing,
		types.StatusProducing,
	},
	types.StatusThinking:   {types.StatusIdle, types.StatusGenerating},
	types.StatusGenerating: {types.StatusIdle},
	types.StatusEditing:    {types.StatusIdle},
	types.StatusAnalyzing:  {types.StatusIdle},
	types.StatusProducing:  {types.StatusIdle},
}

// Allowed reports whether the table permits from -> to.
func Allowed(from, to types.AgentStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition is one committed gate change. Seq increases with every
// transition, so observers can discard notifications that arrive late.
type Transition struct {
	From, To types.AgentStatus
	Seq      uint64
}

// Listener observes committed transitions. It runs outside the gate's lock
// and may itself acquire the gate, so two listeners can run out of order;
// compare Seq before publishing To anywhere.
type Listener func(Transition)

type Gate struct {
	mu        sync.Mutex
	cur       types.AgentStatus
	gen       uint64
	seq       uint64
	listeners []Listener
}

func New() *Gate { return &Gate{cur: types.StatusIdle} }

// OnChange registers l for every subsequent transition.
func (g *Gate) OnChange(l Listener) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, l)
}

func (g *Gate) Current() types.AgentStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cur
}

func (g *Gate) Idle() bool { return g.Current() == types.StatusIdle }

// TryAcquire moves the gate from idle to s and returns the lease that owns
// it. It never blocks; a non-idle gate yields ErrBusy.
func (g *Gate) TryAcquire(s types.AgentStatus) (*Lease, error) {
	g.mu.Lock()
	if g.cur != types.StatusIdle {
		cur := g.cur
		g.mu.Unlock()
		return nil, fmt.Errorf("%w (%s)", ErrBusy, cur)
	}
	if !Allowed(g.cur, s) {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: idle -> %s", ErrInvalidTransition, s)
	}
	g.gen++
	lease := &Lease{g: g, gen: g.gen}
	g.set(s)
	return lease, nil
}

// set commits a transition. g.mu must be held; it is released here so that
// listeners run unlocked.
func (g *Gate) set(to types.AgentStatus) {
	g.seq++
	t := Transition{From: g.cur, To: to, Seq: g.seq}
	g.cur = to
	ls := append([]Listener(nil), g.listeners...)
	g.mu.Unlock()
	for _, l := range ls {
		l(t)
	}
}

// Lease is the right to drive the gate out of idle and back. Release is
// idempotent, so failure paths can always defer it.
type Lease struct {
	g   *Gate
	gen uint64

	mu       sync.Mutex
	released bool
}

// Switch moves the held gate to another busy state (thinking -> generating).
func (l *Lease) Switch(to types.AgentStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return ErrReleased
	}
	l.g.mu.Lock()
	if !Allowed(l.g.cur, to) || to == types.StatusIdle {
		from := l.g.cur
		l.g.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	l.g.set(to)
	return nil
}

// Release returns the gate to idle.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return
	}
	l.released = true
	l.g.mu.Lock()
	if l.g.gen != l.gen || l.g.cur == types.StatusIdle {
		l.g.mu.Unlock()
		return
	}
	l.g.set(types.StatusIdle)
}
