// Package influxdb records occupancy transitions to InfluxDB.
//
// Every transition the engine emits becomes one point in the
// occupancy_transition measurement, tagged by location and transition
// kind. This gives deployments a queryable occupancy history without
// the engine itself ever touching I/O.
//
// Writes are batched and asynchronous; a transition is never worth
// blocking the event path for. When InfluxDB is disabled in
// configuration, Connect returns ErrDisabled and the daemon simply runs
// without history.
package influxdb
