// Package updater implements the update processor: the component that keeps
// an environment's flag store synchronized with the backend.
//
// A Processor runs in one of two modes. In streaming mode it holds one
// event-stream connection to {stream}/mping and performs a full resync on
// every message it receives. In polling mode it resyncs immediately and
// then on a fixed interval. When the application moves to the background a
// streaming processor closes its stream and polls at the slower background
// interval until it is foregrounded again.
//
// States:
//
//	STOPPED -> STARTING -> INITIALIZED <-> RECONNECTING -> STOPPED
//
// Failures are classified with the transport package. A fatal error
// (for example 401) stops the processor permanently and fails the start
// future; any other error moves it to RECONNECTING and schedules a reconnect
// through a jittered exponential backoff throttle.
package updater
