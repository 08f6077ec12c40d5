// Package selection tracks the currently displayed model id as an explicit
// two-state value: the last confirmed selection and, while a persistence
// write is outstanding, an optimistically proposed one.
package selection

import (
	"sync"

	"github.com/rs/zerolog"
)

// Persister durably stores the selected model id. Save runs out-of-band and
// its failure is never surfaced to the machine: the optimistic value is the
// source of truth for the current session regardless.
type Persister interface {
	Save(id string) error
	Load() (string, error)
}

// Machine is the optimistic selection state machine.
//
//	Idle(confirmed) --Select(id)--> Pending(confirmed, id)
//	Pending --persist settles-->    Idle(id)
//	any state --ConfirmExternal(id)--> Idle(id)
//
// The displayed id reflects the proposed value the moment Select is called.
// An external confirmation always wins over stale in-flight optimism.
type Machine struct {
	mu        sync.Mutex
	confirmed string
	proposed  string
	pending   bool
	// generation invalidates the settle of a superseded Select.
	generation uint64

	persist Persister
	log     zerolog.Logger
}

// NewMachine starts in Idle(confirmed).
func NewMachine(confirmed string, p Persister, log zerolog.Logger) *Machine {
	return &Machine{confirmed: confirmed, persist: p, log: log}
}

// Select proposes id, reflects it immediately, and persists fire-and-forget.
// It never blocks on the persistence write.
func (m *Machine) Select(id string) {
	m.mu.Lock()
	m.proposed = id
	m.pending = true
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	go func() {
		if m.persist != nil {
			if err := m.persist.Save(id); err != nil {
				// No rollback: the proposed id keeps being displayed.
				m.log.Debug().Err(err).Str("model_id", id).Msg("selection persist failed")
			}
		}
		m.settle(gen, id)
	}()
}

// settle promotes a proposed id to confirmed unless a newer Select or an
// external confirmation superseded it.
func (m *Machine) settle(gen uint64, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.pending || m.generation != gen {
		return
	}
	m.confirmed = id
	m.pending = false
}

// ConfirmExternal forces Idle(id), discarding any in-flight optimism. Called
// when the persisted value is observed to change from outside this session.
func (m *Machine) ConfirmExternal(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmed = id
	m.pending = false
	m.generation++
}

// Displayed returns the id the UI should show right now: the proposed id
// while pending, otherwise the confirmed one.
func (m *Machine) Displayed() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending {
		return m.proposed
	}
	return m.confirmed
}

// Confirmed returns the last confirmed id.
func (m *Machine) Confirmed() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.confirmed
}
