package occupancy

import "time"

// Snapshot is the JSON-equivalent export of engine state, keyed by
// location ID. Locations in their default state are omitted.
type Snapshot map[string]SnapshotEntry

// SnapshotEntry is the wire form of one location's runtime state.
//
// OccupiedUntil is an ISO-8601 instant or null; the occupant and hold
// sets are arrays with no guaranteed ordering (exports sort them for
// reproducibility, restores accept any order).
type SnapshotEntry struct {
	IsOccupied      bool     `json:"is_occupied"`
	OccupiedUntil   *string  `json:"occupied_until"`
	ActiveOccupants []string `json:"active_occupants"`
	ActiveHolds     []string `json:"active_holds"`
	LockState       string   `json:"lock_state"`
}

// ExportState returns the current engine state in snapshot form.
//
// Only locations that differ from the default vacant, unlocked snapshot
// are included, so a freshly constructed engine exports an empty map.
func (e *Engine) ExportState() Snapshot {
	snapshot := make(Snapshot)
	for _, id := range e.hierarchy.order {
		state := e.states[id]
		if state.isDefault() {
			continue
		}
		entry := SnapshotEntry{
			IsOccupied:      state.IsOccupied,
			ActiveOccupants: sortedKeys(state.ActiveOccupants),
			ActiveHolds:     sortedKeys(state.ActiveHolds),
			LockState:       string(lockOrDefault(state.LockState)),
		}
		if state.OccupiedUntil != nil {
			formatted := state.OccupiedUntil.UTC().Format(time.RFC3339Nano)
			entry.OccupiedUntil = &formatted
		}
		snapshot[id] = entry
	}
	return snapshot
}

// RestoreState replaces the engine state from a snapshot, applying
// stale-data protection against timers that expired while the host was
// down.
//
// Per entry: unknown locations are skipped, malformed timestamps degrade
// to no timer, then:
//  1. A frozen location restores verbatim; locks are timeless.
//  2. Live holds or identities restore verbatim; presence data outweighs
//     an expired timer.
//  3. An expired timer restores as vacant.
//  4. Everything else restores verbatim.
//
// Configured locations absent from the snapshot reset to default vacant.
// The scheduler oracle runs afterwards; the host should follow up with
// CheckTimeouts(now) to clear anything about to fire.
func (e *Engine) RestoreState(snapshot Snapshot, now time.Time) EngineResult {
	for _, id := range e.hierarchy.order {
		e.states[id] = newVacantState(LockUnlocked)
	}

	for _, id := range e.hierarchy.order {
		entry, ok := snapshot[id]
		if !ok {
			continue
		}
		e.states[id] = e.restoreEntry(id, entry, now)
	}

	for id := range snapshot {
		if _, ok := e.hierarchy.config(id); !ok {
			e.logger.Warn("snapshot entry for unknown location skipped",
				"location_id", id,
			)
		}
	}

	return EngineResult{NextExpiration: e.nextExpiration()}
}

// restoreEntry converts one snapshot entry back into a runtime state,
// applying the stale-data rules.
func (e *Engine) restoreEntry(id string, entry SnapshotEntry, now time.Time) LocationState {
	state := newVacantState(parseLockState(entry.LockState))
	state.IsOccupied = entry.IsOccupied
	for _, occupant := range entry.ActiveOccupants {
		state.ActiveOccupants[occupant] = struct{}{}
	}
	for _, hold := range entry.ActiveHolds {
		state.ActiveHolds[hold] = struct{}{}
	}

	if entry.OccupiedUntil != nil {
		parsed, err := time.Parse(time.RFC3339Nano, *entry.OccupiedUntil)
		if err != nil {
			e.logger.Warn("malformed occupied_until in snapshot, dropping timer",
				"location_id", id,
				"value", *entry.OccupiedUntil,
			)
		} else {
			state.OccupiedUntil = &parsed
		}
	}

	switch {
	case state.LockState == LockFrozen:
		// Rule 1: locks are timeless.
	case len(state.ActiveHolds) > 0 || len(state.ActiveOccupants) > 0:
		// Rule 2: live presence outweighs an expired timer.
		state.IsOccupied = true
	case state.OccupiedUntil != nil && !state.OccupiedUntil.After(now):
		// Rule 3: the timer already ran out while we were away.
		return newVacantState(state.LockState)
	default:
		// Rule 4: restore verbatim, but never report occupancy that
		// nothing backs.
		if state.IsOccupied && state.OccupiedUntil == nil {
			// Indefinite occupancy from a manual override survives.
			break
		}
		state.IsOccupied = state.OccupiedUntil != nil && state.OccupiedUntil.After(now)
	}

	return state
}

// parseLockState maps a snapshot lock string to a LockState, degrading
// unknown values to unlocked.
func parseLockState(value string) LockState {
	if LockState(value) == LockFrozen {
		return LockFrozen
	}
	return LockUnlocked
}

// lockOrDefault normalises an empty lock state to unlocked for export.
func lockOrDefault(lock LockState) LockState {
	if lock == "" {
		return LockUnlocked
	}
	return lock
}
