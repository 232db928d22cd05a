// Package kvstore is the persistence boundary of the client. Flag snapshots
// and the installation id go through the small Store interface, with three
// implementations:
//
//   - Memory keeps data for the life of the process;
//   - Pebble stores data in an embedded database on local disk;
//   - Redis shares state between processes, e.g. several CLI invocations.
//
// Redis settings can be read from the environment:
//
//	var cfg kvstore.RedisConfig
//	if err := env.Parse(&cfg); err != nil { ... }
//	store, err := kvstore.ConnectRedis(ctx, cfg)
package kvstore
