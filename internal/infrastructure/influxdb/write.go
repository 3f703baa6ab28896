package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteTransition records one occupancy transition as a time-series point.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - locationID: The location that transitioned
//   - kind: Transition kind (occupied, vacated, extended, ...)
//   - occupied: Whether the location is occupied after the transition
//   - occupants: Number of identities believed present
//   - holds: Number of active presence holds
//   - at: The instant the transition was processed
//
// Example:
//
//	client.WriteTransition("kitchen", "occupied", true, 1, 0, now)
func (c *Client) WriteTransition(locationID, kind string, occupied bool, occupants, holds int, at time.Time) {
	if !c.IsConnected() {
		return
	}

	occupiedValue := 0
	if occupied {
		occupiedValue = 1
	}

	point := write.NewPoint(
		"occupancy_transition",
		map[string]string{
			"location_id": locationID,
			"kind":        kind,
		},
		map[string]interface{}{
			"occupied":  occupiedValue,
			"occupants": occupants,
			"holds":     holds,
		},
		at,
	)

	c.writeAPI.WritePoint(point)
}
