// Package signal provides last-value observables used to feed platform
// state (connectivity, foreground/background) into the client without the
// client calling platform APIs itself.
//
//	online := signal.NewValue(true)
//	client, ready := flagsync.New(cfg, u, flagsync.WithConnectivity(online))
//	// later, from the platform integration:
//	online.Set(false)
//
// Subscribers never block the writer: each subscription buffers one value and
// an unread value is replaced by a newer one.
package signal
