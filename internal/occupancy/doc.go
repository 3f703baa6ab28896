// Package occupancy implements the hierarchical occupancy engine.
//
// The engine consumes occupancy events (motion pulses, presence holds,
// manual overrides, lock changes) for a statically configured tree of
// locations and maintains an immutable runtime snapshot per location:
// whether it is occupied, who is believed present, and when it will next
// transition.
//
// Architecture:
//
//	┌─────────────────────────────────────────────────────────┐
//	│                 Engine (engine.go)                       │
//	│  HandleEvent / CheckTimeouts / State / Export / Restore  │
//	│  ┌──────────────┐    ┌──────────────────────────┐       │
//	│  │  hierarchy   │───▶│  transition kernel        │       │
//	│  │(hierarchy.go)│    │  (kernel.go)              │       │
//	│  └──────────────┘    └──────────────────────────┘       │
//	│        │                        │                        │
//	│        ▼                        ▼                        │
//	│  propagation driver      scheduler oracle                │
//	│  (ancestor walk with     (earliest pending expiry,       │
//	│   synthetic events)       the "wake me up" protocol)     │
//	└─────────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - LocationConfig: static rule for one node in the location tree
//   - LocationState: immutable runtime snapshot for one location
//   - OccupancyEvent: a single sensor or override input
//   - Transition: an observable state change for one location
//   - EngineResult: transitions plus the next wake-up instant
//
// # Time Model
//
// The engine never reads a clock. Every entry point takes the current
// instant from the caller and every mutating call returns the earliest
// instant at which the caller should invoke CheckTimeouts. The host owns
// all timers.
//
// # Thread Safety
//
// The engine is single-threaded by contract. Concurrent callers must
// serialise externally; all published LocationState values are immutable
// snapshots and safe to hold indefinitely.
//
// # Usage
//
//	engine, err := occupancy.NewEngine(configs, occupancy.Options{Logger: log})
//	if err != nil {
//	    return err
//	}
//
//	result, err := engine.HandleEvent(event, time.Now().UTC())
//	if result.NextExpiration != nil {
//	    // arm a timer, then call engine.CheckTimeouts at that instant
//	}
package occupancy
