package phases

import "fmt"

// Signal is what the planner reports after an exchange.
type Signal struct {
	ObjectivesMet bool
}

// Limits caps the number of exchanges spent in each phase before the machine
// advances regardless of the planner's signal.
type Limits map[Phase]int

func DefaultLimits() Limits {
	return Limits{
		Introduction: 1,
		Technical:    5,
		Behavioral:   5,
		Closing:      1,
	}
}

func (l Limits) Validate() error {
	for p := Introduction; p < Completed; p++ {
		if l[p] < 1 {
			return fmt.Errorf("phase %s: max exchanges must be at least 1, got %d", p, l[p])
		}
	}
	return nil
}

// Transition computes the phase that follows a completed exchange. exchanges
// is the number of exchanges already completed in current, including the one
// being reported.
func Transition(current Phase, signal Signal, exchanges, maxExchanges int) (Phase, error) {
	if current >= Completed {
		return current, ErrCompleted
	}
	if !current.Valid() {
		return current, fmt.Errorf("invalid phase %d", int(current))
	}

	if signal.ObjectivesMet || (maxExchanges > 0 && exchanges >= maxExchanges) {
		return current.Next(), nil
	}
	return current, nil
}

// Change describes a single phase transition.
type Change struct {
	From   Phase
	To     Phase
	Forced bool
}

// Machine tracks the current phase and its exchange count. It is not safe for
// concurrent use; the session loop owns it.
type Machine struct {
	current   Phase
	exchanges int
	limits    Limits
	history   []Change
}

func NewMachine(limits Limits) *Machine {
	if limits == nil {
		limits = DefaultLimits()
	}
	return &Machine{current: Introduction, limits: limits}
}

func (m *Machine) Current() Phase {
	return m.current
}

// Exchanges returns the number of exchanges completed in the current phase.
func (m *Machine) Exchanges() int {
	return m.exchanges
}

// Entered reports whether the machine has been in p at some point.
func (m *Machine) Entered(p Phase) bool {
	return p <= m.current
}

func (m *Machine) History() []Change {
	return append([]Change(nil), m.history...)
}

// Advance records a completed exchange and applies the planner signal. It
// returns the transition if the phase changed.
func (m *Machine) Advance(signal Signal) (*Change, error) {
	if m.current >= Completed {
		return nil, ErrCompleted
	}

	m.exchanges++
	maxExchanges := m.limits[m.current]
	next, err := Transition(m.current, signal, m.exchanges, maxExchanges)
	if err != nil {
		return nil, err
	}
	if next == m.current {
		return nil, nil
	}

	change := Change{From: m.current, To: next, Forced: !signal.ObjectivesMet}
	m.enter(change)
	return &change, nil
}

// ForceClose moves the machine to Closing unless it is already there or
// beyond. Used when the session runs out of time.
func (m *Machine) ForceClose() (*Change, error) {
	if m.current >= Completed {
		return nil, ErrCompleted
	}
	if m.current == Closing {
		return nil, nil
	}

	change := Change{From: m.current, To: Closing, Forced: true}
	m.enter(change)
	return &change, nil
}

// Complete moves Closing to Completed.
func (m *Machine) Complete() (*Change, error) {
	if m.current >= Completed {
		return nil, ErrCompleted
	}
	if m.current != Closing {
		return nil, fmt.Errorf("cannot complete from phase %s", m.current)
	}

	change := Change{From: Closing, To: Completed}
	m.enter(change)
	return &change, nil
}

func (m *Machine) enter(change Change) {
	m.current = change.To
	m.exchanges = 0
	m.history = append(m.history, change)
}
