// Package diagnostics reports SDK health to the events service.
//
// Each environment keeps a durable installation id in a kvstore.Store. The
// first time an id is generated the Reporter sends a "diagnostic-init"
// event describing the SDK, its configuration and the platform. After that
// it sends a "diagnostic" statistics event every recording interval with
// dropped event counts, the size of the last event batch and the stream
// connection attempts made since the previous report.
//
// The first statistics event after start is scheduled relative to the
// persisted start of the current window, so restarts do not postpone
// reporting indefinitely. The scheduler is paused in the background.
//
//	store, err := diagnostics.OpenStore(ctx, kv, "default", mobileKey, time.Now())
//	r := diagnostics.NewReporter(cfg, store, eventProcessor)
//	r.Start()
//	defer r.Stop()
package diagnostics
