package occupancy

import "time"

// kernelDefaults carries the engine-wide fallback timeouts into the
// otherwise stateless kernel.
type kernelDefaults struct {
	pulse    time.Duration
	trailing time.Duration
}

// applyEvent is the transition kernel: a pure function from the current
// snapshot plus one event to the next snapshot.
//
// Phases run in a fixed order so later phases observe the latest field
// values: lock gate, lock change, manual override, identity update,
// hold update, expiration. The caller classifies the change afterwards
// with classifyTransition; applyEvent itself never emits anything.
func applyEvent(cfg LocationConfig, state LocationState, event OccupancyEvent, now time.Time, defaults kernelDefaults) LocationState {
	// Phase 1: lock gate. A frozen location ignores everything except
	// manual overrides and lock changes, including propagated events.
	if state.LockState == LockFrozen &&
		event.Type != EventManual && event.Type != EventLockChange {
		return state
	}

	next := state.clone()

	// Phase 2: lock change. Only the lock field moves; values outside
	// the enum are ignored rather than stored.
	if event.Type == EventLockChange {
		if event.Lock == LockUnlocked || event.Lock == LockFrozen {
			next.LockState = event.Lock
		}
		return next
	}

	// Phase 3: manual override with an explicit target state.
	if event.Type == EventManual && event.ForceState != nil {
		if !*event.ForceState {
			return newVacantState(next.LockState)
		}
		next.IsOccupied = true
		switch {
		case len(next.ActiveHolds) > 0:
			// Holds dominate a finite manual override.
			next.OccupiedUntil = nil
		case event.Duration > 0:
			until := now.Add(event.Duration)
			next.OccupiedUntil = &until
		default:
			next.OccupiedUntil = nil
		}
		return next
	}

	// Phase 4: identity update.
	if event.OccupantID != "" {
		switch event.Type {
		case EventHoldStart, EventMomentary:
			next.ActiveOccupants[event.OccupantID] = struct{}{}
		case EventHoldEnd:
			delete(next.ActiveOccupants, event.OccupantID)
		}
	}

	// Phase 5: hold-set update. Removing an unknown source is a no-op so
	// double-firing sensors stay harmless.
	switch event.Type {
	case EventHoldStart:
		if event.SourceID != "" {
			next.ActiveHolds[event.SourceID] = struct{}{}
		}
	case EventHoldEnd:
		delete(next.ActiveHolds, event.SourceID)
	}

	// Phase 6: expiration.
	holdsActive := len(next.ActiveHolds) > 0
	occupantsActive := len(next.ActiveOccupants) > 0

	switch {
	case holdsActive || (occupantsActive && event.Type == EventHoldStart):
		// Indefinite case: an active hold pins the location open.
		next.IsOccupied = true
		next.OccupiedUntil = nil

	case event.Type == EventMomentary || event.Type == EventPropagated || event.Type == EventManual:
		// Pulse case: start or extend a bounded timer. Timers never
		// shorten; a pulse landing inside a longer window is absorbed.
		expiry := event.Timestamp.Add(resolveDuration(event, cfg, defaults.pulse))
		next.IsOccupied = true
		if next.OccupiedUntil == nil || expiry.After(*next.OccupiedUntil) {
			next.OccupiedUntil = &expiry
		}

	case event.Type == EventHoldEnd:
		holdsEmptied := len(state.ActiveHolds) > 0 && !holdsActive
		switch {
		case occupantsActive:
			if holdsEmptied {
				// Identities remain: stay indefinitely occupied.
				next.IsOccupied = true
				next.OccupiedUntil = nil
			}
		case holdsEmptied || len(state.ActiveOccupants) > 0:
			// Hold-release case: the trailing "fudge factor" window.
			// Never shortens a timer already running further out.
			expiry := now.Add(resolveDuration(event, cfg, defaults.trailing))
			next.IsOccupied = true
			if next.OccupiedUntil == nil || expiry.After(*next.OccupiedUntil) {
				next.OccupiedUntil = &expiry
			}
		}
	}

	return next
}

// vacate runs the vacancy cleanup on a snapshot: occupancy, timer, holds
// and identities are all cleared, the lock survives. Identity never
// outlives a vacancy.
func vacate(state LocationState) LocationState {
	return newVacantState(state.LockState)
}

// resolveDuration picks the effective timeout for an event: the event's
// explicit duration wins, then the location's configured category
// timeout, then the engine default for the event's mechanic.
func resolveDuration(event OccupancyEvent, cfg LocationConfig, fallback time.Duration) time.Duration {
	if event.Duration > 0 {
		return event.Duration
	}
	if d := cfg.timeout(event.Category); d > 0 {
		return d
	}
	return fallback
}

// classifyTransition compares two snapshots and returns the observable
// transition between them, or nil when nothing changed.
func classifyTransition(id string, previous, next LocationState) *Transition {
	if previous.equal(next) {
		return nil
	}

	var kind TransitionKind
	switch {
	case !previous.IsOccupied && next.IsOccupied:
		kind = TransitionOccupied
	case previous.IsOccupied && !next.IsOccupied:
		kind = TransitionVacated
	case previous.LockState != next.LockState:
		kind = TransitionLockChanged
	case !setsEqual(previous.ActiveHolds, next.ActiveHolds):
		kind = TransitionHoldChanged
	case !setsEqual(previous.ActiveOccupants, next.ActiveOccupants):
		kind = TransitionIdentityChanged
	default:
		kind = TransitionExtended
	}

	return &Transition{
		LocationID: id,
		Previous:   previous,
		New:        next,
		Kind:       kind,
	}
}
