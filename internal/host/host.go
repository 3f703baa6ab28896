package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/occupancy-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/occupancy-core/internal/occupancy"
)

// Publisher is the interface for publishing messages to the broker.
type Publisher interface {
	// Publish sends a message to the specified MQTT topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Recorder is the interface for recording transitions to time-series
// storage. Implementations must not block.
type Recorder interface {
	WriteTransition(locationID, kind string, occupied bool, occupants, holds int, at time.Time)
}

// SnapshotStore is the interface for persisting engine snapshots.
type SnapshotStore interface {
	Save(ctx context.Context, snapshot occupancy.Snapshot, at time.Time) error
	Load(ctx context.Context) (occupancy.Snapshot, bool, error)
}

// Logger is the logging interface the host needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Host.
type Options struct {
	// Publisher receives retained state messages (may be nil).
	Publisher Publisher

	// Recorder receives transition history points (may be nil).
	Recorder Recorder

	// Store persists and restores engine snapshots (may be nil).
	Store SnapshotStore

	// Logger receives diagnostics (may be nil).
	Logger Logger

	// QoS is the quality-of-service level for published state.
	QoS byte

	// Now supplies the current instant; defaults to time.Now in UTC.
	// Tests inject a fixed clock here.
	Now func() time.Time
}

// Host owns the occupancy engine at runtime.
//
// It is the single serialisation point for engine access and the only
// place in the repository that reads a clock or arms a timer.
type Host struct {
	engine *occupancy.Engine

	publisher Publisher
	recorder  Recorder
	store     SnapshotStore
	logger    Logger
	qos       byte
	now       func() time.Time

	mu    sync.Mutex
	timer *time.Timer
}

// New creates a Host around an engine.
func New(engine *occupancy.Engine, opts Options) *Host {
	h := &Host{
		engine:    engine,
		publisher: opts.Publisher,
		recorder:  opts.Recorder,
		store:     opts.Store,
		logger:    opts.Logger,
		qos:       opts.QoS,
		now:       opts.Now,
	}
	if h.logger == nil {
		h.logger = noopLogger{}
	}
	if h.now == nil {
		h.now = func() time.Time { return time.Now().UTC() }
	}
	return h
}

// Start restores persisted engine state and clears anything that
// expired while the daemon was down.
//
// Parameters:
//   - ctx: Context for the snapshot load
//
// Returns:
//   - error: nil on success or when no snapshot exists; load failures
//     are returned so a corrupt store is visible at startup
func (h *Host) Start(ctx context.Context) error {
	if h.store == nil {
		return nil
	}

	snapshot, found, err := h.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading snapshot: %w", err)
	}
	if !found {
		h.logger.Info("no persisted state, starting vacant")
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	h.engine.RestoreState(snapshot, now)
	// The restore contract: sweep immediately so anything that expired
	// while we were down transitions cleanly.
	result := h.engine.CheckTimeouts(now)
	h.afterMutation(ctx, result, now)

	h.logger.Info("engine state restored",
		"locations", len(snapshot),
		"transitions", len(result.Transitions),
	)
	return nil
}

// Stop cancels the pending wake-up timer.
func (h *Host) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

// HandleMessage is the MQTT entry point: it decodes an event message
// and runs it through the engine.
//
// Unknown locations and malformed payloads are logged and dropped;
// sensors misbehave and the daemon must not crash with them.
//
// Parameters:
//   - topic: The topic the message arrived on (occupancy/event/{id})
//   - payload: JSON event message
//
// Returns:
//   - error: Decoding or engine errors, for the MQTT client's handler log
func (h *Host) HandleMessage(topic string, payload []byte) error {
	locationID := mqtt.LocationFromEventTopic(topic)
	if locationID == "" {
		return fmt.Errorf("%w: topic %q is not an event topic", ErrBadMessage, topic)
	}

	event, err := decodeEvent(locationID, payload, h.now())
	if err != nil {
		return err
	}

	return h.HandleEvent(event)
}

// HandleEvent runs one event through the engine and processes the result.
func (h *Host) HandleEvent(event occupancy.OccupancyEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	result, err := h.engine.HandleEvent(event, now)
	if err != nil {
		if errors.Is(err, occupancy.ErrUnknownLocation) {
			h.logger.Warn("event for unknown location dropped",
				"location_id", event.LocationID,
			)
			return nil
		}
		return err
	}

	h.afterMutation(context.Background(), result, now)
	return nil
}

// CheckTimeouts runs the engine's timeout sweep at the current instant.
func (h *Host) CheckTimeouts() {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	result := h.engine.CheckTimeouts(now)
	h.afterMutation(context.Background(), result, now)

	if len(result.Transitions) > 0 {
		h.logger.Debug("timeout sweep completed",
			"vacated", len(result.Transitions),
		)
	}
}

// State returns the engine's current snapshot for one location.
func (h *Host) State(locationID string) (occupancy.LocationState, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engine.State(locationID)
}

// afterMutation handles everything a mutating engine call obliges the
// host to do: publish transitions, record history, persist the
// snapshot, and re-arm the wake-up timer. Callers hold h.mu.
func (h *Host) afterMutation(ctx context.Context, result occupancy.EngineResult, now time.Time) {
	for _, transition := range result.Transitions {
		h.publishTransition(transition, now)
		if h.recorder != nil {
			h.recorder.WriteTransition(
				transition.LocationID,
				string(transition.Kind),
				transition.New.IsOccupied,
				len(transition.New.ActiveOccupants),
				len(transition.New.ActiveHolds),
				now,
			)
		}
	}

	if h.store != nil && len(result.Transitions) > 0 {
		if err := h.store.Save(ctx, h.engine.ExportState(), now); err != nil {
			h.logger.Error("persisting snapshot failed", "error", err)
		}
	}

	h.rearmTimer(result.NextExpiration, now)
}

// publishTransition publishes the post-transition state, retained, so
// new subscribers immediately see current occupancy.
func (h *Host) publishTransition(transition occupancy.Transition, now time.Time) {
	if h.publisher == nil {
		return
	}

	message := stateMessage{
		ID:              uuid.New().String(),
		LocationID:      transition.LocationID,
		Kind:            string(transition.Kind),
		IsOccupied:      transition.New.IsOccupied,
		ActiveOccupants: transition.New.Occupants(),
		ActiveHolds:     transition.New.Holds(),
		LockState:       string(transition.New.LockState),
		At:              now.UTC().Format(time.RFC3339Nano),
	}
	if transition.New.OccupiedUntil != nil {
		formatted := transition.New.OccupiedUntil.UTC().Format(time.RFC3339Nano)
		message.OccupiedUntil = &formatted
	}

	payload, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("marshalling state message failed", "error", err)
		return
	}

	topic := mqtt.Topics{}.State(transition.LocationID)
	if err := h.publisher.Publish(topic, payload, h.qos, true); err != nil {
		h.logger.Error("publishing state failed",
			"topic", topic,
			"error", err,
		)
	}
}

// rearmTimer replaces the pending wake-up with one at the engine's next
// expiration. A nil expiration leaves no timer armed: nothing will
// expire until another event arrives. Callers hold h.mu.
func (h *Host) rearmTimer(next *time.Time, now time.Time) {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	if next == nil {
		return
	}

	delay := next.Sub(now)
	if delay < 0 {
		delay = 0
	}
	h.timer = time.AfterFunc(delay, h.CheckTimeouts)
}

// stateMessage is the wire form of a published location state.
type stateMessage struct {
	ID              string   `json:"id"`
	LocationID      string   `json:"location_id"`
	Kind            string   `json:"kind"`
	IsOccupied      bool     `json:"is_occupied"`
	OccupiedUntil   *string  `json:"occupied_until"`
	ActiveOccupants []string `json:"active_occupants"`
	ActiveHolds     []string `json:"active_holds"`
	LockState       string   `json:"lock_state"`
	At              string   `json:"at"`
}

// eventMessage is the wire form sensor adapters publish.
type eventMessage struct {
	Type            string `json:"event_type"`
	Category        string `json:"category"`
	SourceID        string `json:"source_id"`
	Timestamp       string `json:"timestamp,omitempty"`
	OccupantID      string `json:"occupant_id,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	ForceState      *bool  `json:"force_state,omitempty"`
	Lock            string `json:"lock_state,omitempty"`
}

// decodeEvent converts an event message into an engine event.
//
// A missing timestamp defaults to now; a malformed one is an error
// (silent time travel is worse than a dropped message).
func decodeEvent(locationID string, payload []byte, now time.Time) (occupancy.OccupancyEvent, error) {
	var message eventMessage
	if err := json.Unmarshal(payload, &message); err != nil {
		return occupancy.OccupancyEvent{}, fmt.Errorf("%w: %w", ErrBadMessage, err)
	}

	eventType, err := parseEventType(message.Type)
	if err != nil {
		return occupancy.OccupancyEvent{}, err
	}

	event := occupancy.OccupancyEvent{
		LocationID: locationID,
		Type:       eventType,
		Category:   message.Category,
		SourceID:   message.SourceID,
		Timestamp:  now,
		OccupantID: message.OccupantID,
		ForceState: message.ForceState,
		Lock:       occupancy.LockState(message.Lock),
	}
	if message.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339Nano, message.Timestamp)
		if err != nil {
			return occupancy.OccupancyEvent{}, fmt.Errorf("%w: bad timestamp %q", ErrBadMessage, message.Timestamp)
		}
		event.Timestamp = parsed
	}
	if message.DurationSeconds > 0 {
		event.Duration = time.Duration(message.DurationSeconds) * time.Second
	}

	return event, nil
}

// parseEventType maps a wire event type onto the engine's enum.
// Propagated events are engine-internal and rejected from the wire.
func parseEventType(value string) (occupancy.EventType, error) {
	switch occupancy.EventType(value) {
	case occupancy.EventMomentary, occupancy.EventHoldStart, occupancy.EventHoldEnd,
		occupancy.EventManual, occupancy.EventLockChange:
		return occupancy.EventType(value), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEventType, value)
	}
}

// noopLogger discards all output.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
