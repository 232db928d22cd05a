// Package throttle runs a single action with jittered exponential backoff.
//
// A Throttler wraps one action. The first AttemptRun after construction (or
// after Reset/Cancel) runs it without delay; each following call is delayed by
//
//	base  = min(retry * 2^attempt, maxRetry)
//	delay = base/2 + rand[0, base/2)
//
// Calls made while a run is pending are absorbed, and a call made while the
// action is executing re-arms the throttler once the action returns, so at
// most one run is ever pending or in flight.
//
// The attempt counter only goes back to zero through Reset (success) or
// Cancel; elapsed time alone never lowers it.
//
// # Usage
//
//	t := throttle.New(reconnect, time.Second, time.Hour)
//	t.AttemptRun() // runs reconnect immediately
//	t.AttemptRun() // runs again after ~1-2s
//	t.Reset()      // connection is healthy again
package throttle
