// Package mqtt provides the MQTT client for the occupancy daemon.
//
// It wraps eclipse/paho.mqtt.golang with connection management,
// automatic reconnection, subscription restoration, and occupancy
// topic builders.
//
// # Topic Scheme
//
// All topics use the flat scheme occupancy/{category}/{location_id}:
//
//	occupancy/event/kitchen    sensor adapters publish events here
//	occupancy/state/kitchen    the daemon publishes retained state here
//	occupancy/system/status    daemon online/offline (Last Will)
//
// # Thread Safety
//
// All Client methods are safe for concurrent use. Message handlers run
// in paho-managed goroutines and must not block for extended periods.
package mqtt
