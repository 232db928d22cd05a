// Package flagsync keeps a local cache of remotely managed feature flags in
// sync with the flag service and reports evaluation analytics without ever
// blocking an evaluation on the network.
//
// A Client owns one Environment per configured mobile key. Each environment
// runs its own pipeline:
//
//   - an update processor (pkg/updater) that listens on the event stream or
//     polls, fetching the full flag set (pkg/fetcher) on every change signal;
//   - a flag store (pkg/flagstore) holding the current user's flags in memory
//     and persisting a snapshot per user through a kvstore.Store;
//   - an event processor (pkg/events) batching identify, custom, feature and
//     summary events;
//   - a diagnostic reporter (pkg/diagnostics), unless opted out.
//
// Basic usage:
//
//	cfg, err := flagsync.LoadConfig()
//	if err != nil {
//		return err
//	}
//	client, started := flagsync.New(cfg, user.User{Key: "user-1"},
//		flagsync.WithLogger(logger.New(logger.WithDevelopment("app"))),
//	)
//	if _, err := started.AwaitWithTimeout(5 * time.Second); err != nil {
//		// fatal error or timeout; retriable failures keep reconnecting
//	}
//	defer client.Close(context.Background())
//
//	if client.Variation("new-checkout", false) == true {
//		// ...
//	}
//
// Connectivity and application visibility are injected as
// signal.Observable[bool] values with WithConnectivity and WithForeground.
// The client never inspects the platform itself.
//
// Evaluation never returns an error. VariationDetail reports why the
// fallback was used through EvaluationDetail.ErrorKind.
package flagsync
