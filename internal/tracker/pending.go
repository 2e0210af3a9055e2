package tracker

import "mantrip/internal/attendance/models"

// Phase is the lifecycle of one optimistic write.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePending
	PhaseCommitted
	PhaseRolledBack
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseCommitted:
		return "committed"
	case PhaseRolledBack:
		return "rolled_back"
	default:
		return "idle"
	}
}

// pendingOp is the in-flight write for one key. snapshot is the record as it
// was before the optimistic mutation, nil when the key had no record.
type pendingOp struct {
	phase    Phase
	snapshot *models.Record
	orphaned bool
}

// pendingSet tracks at most one in-flight write per key. ops holds only
// Pending writes; settled keeps the outcome of the last settled write per key.
// Callers hold the engine lock.
type pendingSet struct {
	ops     map[models.Key]*pendingOp
	settled map[models.Key]Phase
}

func newPendingSet() *pendingSet {
	return &pendingSet{
		ops:     make(map[models.Key]*pendingOp),
		settled: make(map[models.Key]Phase),
	}
}

func (p *pendingSet) phase(key models.Key) Phase {
	if _, ok := p.ops[key]; ok {
		return PhasePending
	}
	if phase, ok := p.settled[key]; ok {
		return phase
	}
	return PhaseIdle
}

func (p *pendingSet) inFlight(key models.Key) bool {
	_, ok := p.ops[key]
	return ok
}

// begin moves key to Pending. It returns false if key is already Pending.
func (p *pendingSet) begin(key models.Key, snapshot *models.Record) (*pendingOp, bool) {
	if p.inFlight(key) {
		return nil, false
	}
	op := &pendingOp{phase: PhasePending, snapshot: snapshot.Clone()}
	p.ops[key] = op
	return op, true
}

// settle ends op for key. Settling an op twice is a no-op.
func (p *pendingSet) settle(key models.Key, op *pendingOp, phase Phase) {
	if op.phase != PhasePending {
		return
	}
	op.phase = phase
	if p.ops[key] == op {
		delete(p.ops, key)
	}
	if op.orphaned {
		return
	}
	p.settled[key] = phase
}

// orphan marks every pending write for person so its reconciliation leaves
// local state alone, and forgets the person's settled outcomes.
func (p *pendingSet) orphan(person string) {
	for key, op := range p.ops {
		if key.PersonName == person {
			op.orphaned = true
		}
	}
	for key := range p.settled {
		if key.PersonName == person {
			delete(p.settled, key)
		}
	}
}

func (p *pendingSet) count() int {
	return len(p.ops)
}
