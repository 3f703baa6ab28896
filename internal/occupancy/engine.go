package occupancy

import (
	"fmt"
	"time"
)

// Options tunes engine-wide behaviour. The zero value is ready for use.
type Options struct {
	// DefaultPulseTimeout replaces DefaultPulseTimeout when positive.
	DefaultPulseTimeout time.Duration

	// DefaultTrailingTimeout replaces DefaultTrailingTimeout when positive.
	DefaultTrailingTimeout time.Duration

	// Logger receives diagnostic output. Nil disables logging.
	Logger Logger
}

// Engine is the hierarchical occupancy engine.
//
// It owns one snapshot per configured location and mutates them only by
// whole-snapshot replacement through the transition kernel. The engine
// is time-agnostic: callers supply the current instant on every call and
// receive the next instant at which CheckTimeouts should run.
//
// Thread Safety: none. The engine is single-threaded by contract;
// concurrent callers must serialise externally.
type Engine struct {
	hierarchy *hierarchy
	states    map[string]LocationState
	defaults  kernelDefaults
	logger    Logger
}

// NewEngine validates the location forest and initialises every location
// to the default vacant snapshot.
//
// Parameters:
//   - configs: Static location rules; must form a forest with unique IDs
//   - opts: Engine options (zero value is fine)
//
// Returns:
//   - *Engine: Ready engine
//   - error: ErrInvalidLocation, ErrDuplicateLocation, ErrUnknownParent
//     or ErrHierarchyCycle when the configs are not a valid forest
func NewEngine(configs []LocationConfig, opts Options) (*Engine, error) {
	h, err := newHierarchy(configs)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		hierarchy: h,
		states:    make(map[string]LocationState, len(configs)),
		defaults: kernelDefaults{
			pulse:    DefaultPulseTimeout,
			trailing: DefaultTrailingTimeout,
		},
		logger: opts.Logger,
	}
	if opts.DefaultPulseTimeout > 0 {
		e.defaults.pulse = opts.DefaultPulseTimeout
	}
	if opts.DefaultTrailingTimeout > 0 {
		e.defaults.trailing = opts.DefaultTrailingTimeout
	}
	if e.logger == nil {
		e.logger = noopLogger{}
	}

	for _, id := range h.order {
		e.states[id] = newVacantState(LockUnlocked)
	}

	return e, nil
}

// HandleEvent processes one occupancy event at the given instant.
//
// The transition kernel runs on the targeted location, the propagation
// driver walks the ancestor chain with synthetic events where the change
// warrants it, and the scheduler oracle recomputes the next expiration.
//
// Parameters:
//   - event: The event to process
//   - now: Current wall-clock instant supplied by the caller
//
// Returns:
//   - EngineResult: Transitions in walk order plus the next wake-up instant
//   - error: ErrUnknownLocation when the event targets an unconfigured
//     location; the engine state is untouched in that case
func (e *Engine) HandleEvent(event OccupancyEvent, now time.Time) (EngineResult, error) {
	cfg, ok := e.hierarchy.config(event.LocationID)
	if !ok {
		return EngineResult{}, fmt.Errorf("%w: %q", ErrUnknownLocation, event.LocationID)
	}

	previous := e.states[event.LocationID]
	next := applyEvent(cfg, previous, event, now, e.defaults)

	var transitions []Transition
	if tr := classifyTransition(event.LocationID, previous, next); tr != nil {
		transitions = append(transitions, *tr)
	} else {
		e.logger.Debug("event produced no observable change",
			"location_id", event.LocationID,
			"event_type", string(event.Type),
		)
	}
	e.states[event.LocationID] = next

	if propagationTriggered(previous, next) {
		e.propagateUp(event.LocationID, previous, next, now, &transitions)
	}

	return EngineResult{
		Transitions:    transitions,
		NextExpiration: e.nextExpiration(),
	}, nil
}

// CheckTimeouts sweeps all locations at the given instant, vacating any
// whose timer has run out and which no hold pins open.
//
// Expiry does not propagate upward: a parent's timer was set by the last
// contributing propagation and expires on its own, possibly within the
// same sweep. Arriving late is harmless; arriving early is a no-op.
func (e *Engine) CheckTimeouts(now time.Time) EngineResult {
	type expiry struct {
		id       string
		previous LocationState
	}

	var expired []expiry
	for _, id := range e.hierarchy.order {
		state := e.states[id]
		// A frozen location's timer is suspended with everything else.
		if state.LockState == LockFrozen {
			continue
		}
		if !state.IsOccupied || state.OccupiedUntil == nil {
			continue
		}
		if state.OccupiedUntil.After(now) {
			continue
		}
		if len(state.ActiveHolds) > 0 {
			continue
		}
		e.states[id] = vacate(state)
		expired = append(expired, expiry{id: id, previous: state})
	}

	// Transitions are classified against the post-sweep states so a
	// follow-parent location under a still-occupied ancestor does not
	// report a vacancy it never exposes.
	var transitions []Transition
	for _, exp := range expired {
		cfg, _ := e.hierarchy.config(exp.id)
		if cfg.Strategy == StrategyFollowParent && e.ancestorOccupied(exp.id) {
			continue
		}
		transitions = append(transitions, Transition{
			LocationID: exp.id,
			Previous:   exp.previous,
			New:        e.states[exp.id],
			Kind:       TransitionVacated,
		})
	}

	return EngineResult{
		Transitions:    transitions,
		NextExpiration: e.nextExpiration(),
	}
}

// State returns the current snapshot for a location.
//
// For follow-parent locations the returned snapshot reports occupied
// whenever any ancestor is occupied, without touching the stored timer;
// vacating the ancestor implicitly vacates the follower on the next query.
func (e *Engine) State(locationID string) (LocationState, error) {
	cfg, ok := e.hierarchy.config(locationID)
	if !ok {
		return LocationState{}, fmt.Errorf("%w: %q", ErrUnknownLocation, locationID)
	}

	state := e.states[locationID].clone()
	if cfg.Strategy == StrategyFollowParent && !state.IsOccupied && e.ancestorOccupied(locationID) {
		state.IsOccupied = true
	}
	return state, nil
}

// LocationIDs returns all configured location IDs in lexical order.
func (e *Engine) LocationIDs() []string {
	ids := make([]string, len(e.hierarchy.order))
	copy(ids, e.hierarchy.order)
	return ids
}

// propagationTriggered reports whether a child's change warrants walking
// the ancestor chain: new occupancy, a timer moving, heldness changing,
// or the occupant set changing.
func propagationTriggered(previous, next LocationState) bool {
	if !previous.IsOccupied && next.IsOccupied {
		return true
	}
	if previous.IsOccupied && next.IsOccupied {
		switch {
		case previous.OccupiedUntil != nil && next.OccupiedUntil != nil &&
			next.OccupiedUntil.After(*previous.OccupiedUntil):
			return true
		case previous.OccupiedUntil != nil && next.OccupiedUntil == nil:
			return true
		case previous.OccupiedUntil == nil && next.OccupiedUntil != nil:
			return true
		}
	}
	// A held child vacating must release its hold on the parent.
	if previous.indefinitelyOccupied() && !next.IsOccupied {
		return true
	}
	return !setsEqual(previous.ActiveOccupants, next.ActiveOccupants)
}

// propagateUp applies the child's change to its parent via a synthetic
// event, then recurses while the chain keeps changing.
//
// The walk stops at a child that does not contribute to its parent (the
// backyard rule), at a frozen parent, and at a child vacancy: vacancy
// never bubbles, except that a child leaving an indefinite hold sends
// the matching hold release so the parent's trailing window can start.
func (e *Engine) propagateUp(childID string, previous, next LocationState, now time.Time, transitions *[]Transition) {
	cfg, ok := e.hierarchy.config(childID)
	if !ok || cfg.ParentID == "" || !cfg.ContributesToParent {
		return
	}

	parentID := cfg.ParentID
	parentCfg, _ := e.hierarchy.config(parentID)
	parentPrevious := e.states[parentID]
	if parentPrevious.LockState == LockFrozen {
		return
	}

	event, ok := syntheticEvent(parentID, childID, previous, next, now)
	if !ok {
		return
	}

	// The child's identities ride along with the propagation: arrivals
	// merge into the parent, departures leave it. Reconciling before the
	// kernel runs lets the parent's expiration phase see the final sets,
	// so an identity departure can engage the parent's trailing window.
	parentInput := parentPrevious.clone()
	for occupant := range previous.ActiveOccupants {
		if _, still := next.ActiveOccupants[occupant]; !still {
			delete(parentInput.ActiveOccupants, occupant)
		}
	}
	if next.IsOccupied {
		for occupant := range next.ActiveOccupants {
			parentInput.ActiveOccupants[occupant] = struct{}{}
		}
	}

	parentNext := applyEvent(parentCfg, parentInput, event, now, e.defaults)

	tr := classifyTransition(parentID, parentPrevious, parentNext)
	if tr == nil {
		return
	}
	e.states[parentID] = parentNext
	*transitions = append(*transitions, *tr)

	e.propagateUp(parentID, parentPrevious, parentNext, now, transitions)
}

// syntheticEvent builds the propagated event a parent receives for a
// child change, or reports that nothing should be sent.
func syntheticEvent(parentID, childID string, previous, next LocationState, now time.Time) (OccupancyEvent, bool) {
	base := OccupancyEvent{
		LocationID: parentID,
		Category:   CategoryPropagated,
		SourceID:   childID,
		Timestamp:  now,
	}

	switch {
	case next.indefinitelyOccupied():
		// The child pins its parent open, keyed by the child's ID.
		base.Type = EventHoldStart
		return base, true

	case previous.indefinitelyOccupied():
		// The child released; the parent's trailing window may engage.
		base.Type = EventHoldEnd
		return base, true

	case next.IsOccupied && next.OccupiedUntil != nil && next.OccupiedUntil.After(now):
		base.Type = EventPropagated
		base.Duration = next.OccupiedUntil.Sub(now)
		return base, true
	}

	// Child vacancy does not bubble up.
	return OccupancyEvent{}, false
}

// ancestorOccupied reports whether any ancestor of a location is
// occupied in its stored snapshot.
func (e *Engine) ancestorOccupied(locationID string) bool {
	for _, ancestor := range e.hierarchy.ancestors(locationID) {
		if e.states[ancestor].IsOccupied {
			return true
		}
	}
	return false
}

// nextExpiration is the scheduler oracle: the minimum pending timer
// across all locations that no hold pins open, or nil when none exist.
// Frozen locations are skipped; their timers cannot fire, and counting
// them would have the host waking for sweeps that can never act.
func (e *Engine) nextExpiration() *time.Time {
	var earliest *time.Time
	for _, id := range e.hierarchy.order {
		state := e.states[id]
		if state.LockState == LockFrozen {
			continue
		}
		if len(state.ActiveHolds) > 0 || state.OccupiedUntil == nil {
			continue
		}
		if earliest == nil || state.OccupiedUntil.Before(*earliest) {
			t := *state.OccupiedUntil
			earliest = &t
		}
	}
	return earliest
}
