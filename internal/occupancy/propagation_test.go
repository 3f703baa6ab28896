package occupancy

import (
	"testing"
	"time"
)

// ─── Upward Propagation ─────────────────────────────────────────────────────

func TestMotionPropagatesUpTheChain(t *testing.T) {
	engine := newTestEngine(t, houseConfigs())

	event := motionEvent("kitchen", testNow)
	event.Duration = 10 * time.Minute
	result := mustHandle(t, engine, event, testNow)

	// Walk order: originating location first, then ancestors bottom-up.
	want := []string{"kitchen", "main_floor", "home"}
	if len(result.Transitions) != len(want) {
		t.Fatalf("transitions = %d, want %d", len(result.Transitions), len(want))
	}
	for i, id := range want {
		if result.Transitions[i].LocationID != id {
			t.Fatalf("transition[%d] = %s, want %s", i, result.Transitions[i].LocationID, id)
		}
		if result.Transitions[i].Kind != TransitionOccupied {
			t.Fatalf("transition[%d] kind = %s, want OCCUPIED", i, result.Transitions[i].Kind)
		}
	}

	// The child's remaining window rides up: every ancestor carries the
	// same expiry.
	assertUntil(t, mustState(t, engine, "kitchen"), at(10))
	assertUntil(t, mustState(t, engine, "main_floor"), at(10))
	assertUntil(t, mustState(t, engine, "home"), at(10))
}

func TestVacancyAsymmetry(t *testing.T) {
	engine := newTestEngine(t, houseConfigs())

	event := motionEvent("kitchen", testNow)
	event.Duration = 10 * time.Minute
	mustHandle(t, engine, event, testNow)

	// Both timers hit at 12:10; each location vacates on its own timer,
	// the child's vacancy never pushes the parent out early.
	sweep := engine.CheckTimeouts(at(10))
	vacated := map[string]bool{}
	for _, tr := range sweep.Transitions {
		if tr.Kind != TransitionVacated {
			t.Fatalf("unexpected %s for %s", tr.Kind, tr.LocationID)
		}
		vacated[tr.LocationID] = true
	}
	for _, id := range []string{"kitchen", "main_floor", "home"} {
		if !vacated[id] {
			t.Fatalf("%s did not vacate at its own expiry", id)
		}
	}
	assertInvariants(t, engine)
}

func TestChildVacancyDoesNotTouchParent(t *testing.T) {
	engine := newTestEngine(t, houseConfigs())

	// Kitchen holds the floor open, then separate motion extends the
	// floor beyond the kitchen's own window.
	short := motionEvent("kitchen", testNow)
	short.Duration = 5 * time.Minute
	mustHandle(t, engine, short, testNow)

	floorMotion := motionEvent("main_floor", testNow)
	floorMotion.Duration = 20 * time.Minute
	mustHandle(t, engine, floorMotion, testNow)

	sweep := engine.CheckTimeouts(at(5))
	if len(sweep.Transitions) != 1 || sweep.Transitions[0].LocationID != "kitchen" {
		t.Fatalf("sweep = %+v, want only kitchen vacated", sweep.Transitions)
	}
	if !mustState(t, engine, "main_floor").IsOccupied {
		t.Fatal("child expiry shortened the parent")
	}
	assertUntil(t, mustState(t, engine, "main_floor"), at(20))
}

func TestHeldChildPinsAncestors(t *testing.T) {
	engine := newTestEngine(t, houseConfigs())

	result := mustHandle(t, engine, holdStart("kitchen", "radar", testNow), testNow)

	for _, id := range []string{"kitchen", "main_floor", "home"} {
		state := mustState(t, engine, id)
		if !state.IsOccupied || state.OccupiedUntil != nil {
			t.Fatalf("%s should be indefinitely occupied: %+v", id, state)
		}
	}
	// Parents hold on the child's ID, not the sensor's.
	floor := mustState(t, engine, "main_floor")
	if _, ok := floor.ActiveHolds["kitchen"]; !ok {
		t.Fatalf("main_floor holds = %v, want kitchen", floor.Holds())
	}
	home := mustState(t, engine, "home")
	if _, ok := home.ActiveHolds["main_floor"]; !ok {
		t.Fatalf("home holds = %v, want main_floor", home.Holds())
	}
	if result.NextExpiration != nil {
		t.Fatalf("next_expiration = %v, want nil while held", result.NextExpiration)
	}
}

func TestChildReleaseStartsParentTrailingWindow(t *testing.T) {
	engine := newTestEngine(t, houseConfigs())
	mustHandle(t, engine, holdStart("kitchen", "radar", testNow), testNow)

	mustHandle(t, engine, holdEnd("kitchen", "radar", at(30)), at(30))

	// The kitchen runs its own presence fudge (2 min); the floor's
	// trailing window uses its propagated timeout (5 min).
	assertUntil(t, mustState(t, engine, "kitchen"), at(32))
	floor := mustState(t, engine, "main_floor")
	if len(floor.ActiveHolds) != 0 {
		t.Fatalf("main_floor holds = %v, want released", floor.Holds())
	}
	if !floor.IsOccupied {
		t.Fatal("parent must not vacate immediately on child release")
	}
	assertUntil(t, floor, at(35))
}

func TestOccupantsMergeUpward(t *testing.T) {
	engine := newTestEngine(t, houseConfigs())

	arrive := holdStart("kitchen", "ble_mike", testNow)
	arrive.OccupantID = "Mike"
	mustHandle(t, engine, arrive, testNow)

	for _, id := range []string{"kitchen", "main_floor", "home"} {
		state := mustState(t, engine, id)
		if _, ok := state.ActiveOccupants["Mike"]; !ok {
			t.Fatalf("%s occupants = %v, want Mike", id, state.Occupants())
		}
	}

	leave := holdEnd("kitchen", "ble_mike", at(5))
	leave.OccupantID = "Mike"
	mustHandle(t, engine, leave, at(5))

	for _, id := range []string{"kitchen", "main_floor", "home"} {
		state := mustState(t, engine, id)
		if _, ok := state.ActiveOccupants["Mike"]; ok {
			t.Fatalf("%s still believes Mike present after departure", id)
		}
	}
	assertInvariants(t, engine)
}

// ─── Backyard Rule ──────────────────────────────────────────────────────────

func TestBackyardNeverContributes(t *testing.T) {
	configs := houseConfigs()
	configs = append(configs, LocationConfig{
		ID:                  "backyard",
		ParentID:            "home",
		Kind:                KindArea,
		Strategy:            StrategyIndependent,
		ContributesToParent: false,
		Timeouts:            map[string]int{"motion": 10},
	})
	engine := newTestEngine(t, configs)

	result := mustHandle(t, engine, motionEvent("backyard", testNow), testNow)

	if len(result.Transitions) != 1 || result.Transitions[0].LocationID != "backyard" {
		t.Fatalf("transitions = %+v, want backyard only", result.Transitions)
	}
	if mustState(t, engine, "home").IsOccupied {
		t.Fatal("backyard occupancy leaked to home")
	}
}

// ─── Lock Filter ────────────────────────────────────────────────────────────

func TestFrozenParentIgnoresChildPropagation(t *testing.T) {
	engine := newTestEngine(t, houseConfigs())
	mustHandle(t, engine, lockChange("main_floor", LockFrozen, testNow), testNow)

	result := mustHandle(t, engine, motionEvent("kitchen", at(1)), at(1))

	for _, tr := range result.Transitions {
		if tr.LocationID != "kitchen" {
			t.Fatalf("propagation passed a frozen parent: %+v", tr)
		}
	}
	if mustState(t, engine, "main_floor").IsOccupied {
		t.Fatal("frozen main_floor became occupied")
	}
	// The chain stops at the frozen parent; the grandparent stays vacant.
	if mustState(t, engine, "home").IsOccupied {
		t.Fatal("propagation leapfrogged the frozen parent")
	}
}

// ─── FOLLOW_PARENT Strategy ─────────────────────────────────────────────────

func followerConfigs() []LocationConfig {
	return []LocationConfig{
		{
			ID:                  "landing",
			ParentID:            "upstairs",
			Kind:                KindArea,
			Strategy:            StrategyFollowParent,
			ContributesToParent: true,
			Timeouts:            map[string]int{"motion": 5},
		},
		{
			ID:                  "upstairs",
			Kind:                KindVirtual,
			Strategy:            StrategyIndependent,
			ContributesToParent: true,
			Timeouts:            map[string]int{"motion": 10},
		},
	}
}

func TestFollowParentInheritsOccupancy(t *testing.T) {
	engine := newTestEngine(t, followerConfigs())

	mustHandle(t, engine, motionEvent("upstairs", testNow), testNow)

	landing := mustState(t, engine, "landing")
	if !landing.IsOccupied {
		t.Fatal("follower should report occupied under an occupied ancestor")
	}
	// The follower inherits the flag only, never a timer of its own.
	if landing.OccupiedUntil != nil {
		t.Fatalf("follower occupied_until = %v, want nil", landing.OccupiedUntil)
	}
}

func TestFollowParentVacatesWithAncestor(t *testing.T) {
	engine := newTestEngine(t, followerConfigs())
	mustHandle(t, engine, motionEvent("upstairs", testNow), testNow)

	engine.CheckTimeouts(at(10))

	if mustState(t, engine, "landing").IsOccupied {
		t.Fatal("follower should read vacant once the ancestor vacates")
	}
}

func TestFollowParentSweepSuppressedUnderOccupiedAncestor(t *testing.T) {
	engine := newTestEngine(t, followerConfigs())
	mustHandle(t, engine, motionEvent("landing", testNow), testNow)
	mustHandle(t, engine, motionEvent("upstairs", testNow), testNow)

	// The landing's own 5-minute window runs out while upstairs is still
	// occupied: no VACATED is observable, the follower keeps reporting
	// occupied through its ancestor.
	sweep := engine.CheckTimeouts(at(5))
	if len(sweep.Transitions) != 0 {
		t.Fatalf("sweep = %+v, want no observable vacancy", sweep.Transitions)
	}
	if !mustState(t, engine, "landing").IsOccupied {
		t.Fatal("follower stopped reporting occupancy under occupied ancestor")
	}
}
