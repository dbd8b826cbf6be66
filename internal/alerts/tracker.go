package alerts

import (
	"sync"

	"github.com/rs/zerolog"

	"verdant/internal/events"
)

// DefaultConfirmations is how many consecutive agreeing readings are
// needed before a state transition is committed.
const DefaultConfirmations = 3

// Transition describes one committed state change, handed to callbacks.
type Transition struct {
	Namespace events.Namespace
	Sensor    events.SensorID
	State     State
	Value     float64
	// Rule is the violated rule for OK->IN_ALERT transitions. On
	// resolutions it is nil: a recovery is not attributable to one bound.
	Rule *Rule
}

// Callback receives committed transitions for one namespace.
type Callback func(t Transition)

type key struct {
	ns     events.Namespace
	sensor string
}

type entry struct {
	state   State
	pending State
	count   int
}

// Tracker is the debounced alert state machine. Each (namespace, sensor)
// key starts in OK; a transition commits only after the configured number
// of consecutive readings agree on the opposite state, and the counter
// resets whenever a reading disagrees with the pending direction.
//
// Callbacks run synchronously inside Check, on the caller's goroutine.
// Producers poll sequentially, so no transition can be observed out of
// order with the reading that caused it.
type Tracker struct {
	mu            sync.Mutex
	entries       map[key]*entry
	callbacks     map[events.Namespace][]Callback
	confirmations int
	log           zerolog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithConfirmations overrides the consecutive-reading requirement.
// Values below 1 are clamped to 1 (every reading commits immediately).
func WithConfirmations(n int) Option {
	return func(t *Tracker) {
		if n < 1 {
			n = 1
		}
		t.confirmations = n
	}
}

// NewTracker creates a tracker with all keys implicitly in OK.
func NewTracker(log zerolog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		entries:       make(map[key]*entry),
		callbacks:     make(map[events.Namespace][]Callback),
		confirmations: DefaultConfirmations,
		log:           log.With().Str("component", "alert-tracker").Logger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RegisterCallback subscribes to committed transitions for one namespace.
// Not safe to call concurrently with Check; register during startup.
func (t *Tracker) RegisterCallback(ns events.Namespace, cb Callback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks[ns] = append(t.callbacks[ns], cb)
}

// Check feeds one reading for a sensor through the state machine.
// violated is the outcome of rule evaluation against the current state
// (see EvaluateAxis); rule is the violated rule when violated is true.
// It returns the committed state after this reading.
func (t *Tracker) Check(ns events.Namespace, sensor events.SensorID, value float64, violated bool, rule Rule) State {
	t.mu.Lock()

	k := key{ns: ns, sensor: sensor.String()}
	e, ok := t.entries[k]
	if !ok {
		e = &entry{state: StateOK, pending: StateOK}
		t.entries[k] = e
	}

	observed := StateOK
	if violated {
		observed = StateInAlert
	}

	if observed == e.state {
		// Agreement with the committed state cancels any pending flip.
		e.pending = e.state
		e.count = 0
		t.mu.Unlock()
		return e.state
	}

	if e.pending != observed {
		e.pending = observed
		e.count = 0
	}
	e.count++

	if e.count < t.confirmations {
		state := e.state
		t.mu.Unlock()
		return state
	}

	e.state = observed
	e.pending = observed
	e.count = 0

	tr := Transition{
		Namespace: ns,
		Sensor:    sensor,
		State:     observed,
		Value:     value,
	}
	if observed == StateInAlert {
		r := rule
		tr.Rule = &r
	}
	cbs := append([]Callback(nil), t.callbacks[ns]...)
	t.mu.Unlock()

	t.log.Info().
		Str("namespace", string(ns)).
		Str("sensor", sensor.String()).
		Str("state", string(observed)).
		Float64("value", value).
		Msg("Alert state transition")

	for _, cb := range cbs {
		cb(tr)
	}
	return observed
}

// StateOf returns the committed state for a key. Unknown keys are OK.
func (t *Tracker) StateOf(ns events.Namespace, sensor events.SensorID) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[key{ns: ns, sensor: sensor.String()}]; ok {
		return e.state
	}
	return StateOK
}

// Reset returns keys to OK and clears pending transitions. With no
// arguments every key resets; one argument resets a namespace; two reset
// a single (namespace, sensor) key. Used when thresholds change: stale
// in-alert state must not suppress re-detection against the new rules.
func (t *Tracker) Reset(scope ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch len(scope) {
	case 0:
		t.entries = make(map[key]*entry)
	case 1:
		for k := range t.entries {
			if string(k.ns) == scope[0] {
				delete(t.entries, k)
			}
		}
	default:
		delete(t.entries, key{ns: events.Namespace(scope[0]), sensor: scope[1]})
	}
}
