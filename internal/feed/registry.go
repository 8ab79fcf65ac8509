package feed

import (
	"sync"

	"github.com/tphakala/rtp-recorder/internal/errors"
)

// ErrUnknownFeed is returned for ids and ports outside the population.
var ErrUnknownFeed = errors.NewStd("unknown feed")

type entry struct {
	def   Definition
	state State
}

// Registry owns the feed population and per-feed state. The id <-> port
// mapping is fixed at construction.
type Registry struct {
	mu     sync.RWMutex
	byMID  map[string]*entry
	byPort map[int]string
	order  []string
}

// NewRegistry indexes defs and rejects duplicate ids or ports.
func NewRegistry(defs []Definition) (*Registry, error) {
	r := &Registry{
		byMID:  make(map[string]*entry, len(defs)),
		byPort: make(map[int]string, len(defs)),
		order:  make([]string, 0, len(defs)),
	}

	for i := range defs {
		d := defs[i]
		if d.MID == "" {
			return nil, errors.Newf("feed at index %d has an empty id", i).
				Component("feed").
				Category(errors.CategoryValidation).
				Build()
		}
		if _, dup := r.byMID[d.MID]; dup {
			return nil, errors.Newf("duplicate feed id %s", d.MID).
				Component("feed").
				Category(errors.CategoryValidation).
				Context("mid", d.MID).
				Build()
		}
		if other, dup := r.byPort[d.Port]; dup {
			return nil, errors.Newf("port %d assigned to both %s and %s", d.Port, other, d.MID).
				Component("feed").
				Category(errors.CategoryValidation).
				Context("port", d.Port).
				Build()
		}
		if d.CameraIP == "" {
			d.CameraIP = UnknownSource
		}
		r.byMID[d.MID] = &entry{def: d, state: StateUnknown}
		r.byPort[d.Port] = d.MID
		r.order = append(r.order, d.MID)
	}

	return r, nil
}

// Len returns the population size.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Get returns a copy of the definition for mid.
func (r *Registry) Get(mid string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byMID[mid]
	if !ok {
		return Definition{}, false
	}
	return copyDef(e.def), true
}

// ByPort returns the definition assigned to port.
func (r *Registry) ByPort(port int) (Definition, bool) {
	r.mu.RLock()
	mid, ok := r.byPort[port]
	r.mu.RUnlock()
	if !ok {
		return Definition{}, false
	}
	return r.Get(mid)
}

// All returns copies of every definition in generation order.
func (r *Registry) All() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.order))
	for _, mid := range r.order {
		out = append(out, copyDef(r.byMID[mid].def))
	}
	return out
}

// State returns the current state of mid.
func (r *Registry) State(mid string) (State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byMID[mid]
	if !ok {
		return StateUnknown, unknownFeed(mid)
	}
	return e.state, nil
}

// MarkDetected records the detected source of mid and moves it to Detected.
// It returns the updated definition.
func (r *Registry) MarkDetected(mid string, src Source) (Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byMID[mid]
	if !ok {
		return Definition{}, unknownFeed(mid)
	}
	if err := e.transition(mid, StateDetected); err != nil {
		return Definition{}, err
	}
	port := src.Port
	e.def.CameraIP = src.IP
	e.def.SenderPort = &port
	return copyDef(e.def), nil
}

// SetSource restores a source persisted by an earlier run without changing state.
func (r *Registry) SetSource(mid string, src Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byMID[mid]
	if !ok {
		return unknownFeed(mid)
	}
	port := src.Port
	e.def.CameraIP = src.IP
	e.def.SenderPort = &port
	return nil
}

// Transition moves mid to state to if the transition table allows it.
func (r *Registry) Transition(mid string, to State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byMID[mid]
	if !ok {
		return unknownFeed(mid)
	}
	return e.transition(mid, to)
}

// Counts returns the number of feeds per state.
func (r *Registry) Counts() map[State]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[State]int)
	for _, e := range r.byMID {
		counts[e.state]++
	}
	return counts
}

func (e *entry) transition(mid string, to State) error {
	if !CanTransition(e.state, to) {
		return errors.New(ErrInvalidTransition).
			Component("feed").
			Category(errors.CategoryState).
			Context("mid", mid).
			Context("from", e.state.String()).
			Context("to", to.String()).
			Build()
	}
	e.state = to
	return nil
}

func unknownFeed(mid string) error {
	return errors.New(ErrUnknownFeed).
		Component("feed").
		Category(errors.CategoryNotFound).
		Context("mid", mid).
		Build()
}

func copyDef(d Definition) Definition {
	if d.SenderPort != nil {
		p := *d.SenderPort
		d.SenderPort = &p
	}
	return d
}
