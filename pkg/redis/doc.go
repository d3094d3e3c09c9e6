// Package redis connects to the optional Redis instance used for the
// processed-event log and exposes a readiness probe for it.
//
//	if cfg.Enabled() {
//		client, err := redis.Connect(ctx, cfg)
//		...
//	}
package redis
