// Package logger builds slog loggers for the substrack binaries and provides
// attribute helpers so that the same keys are used across packages.
//
// New applies functional options on top of production defaults (JSON, INFO,
// stdout). WithEnvironment switches between the development (text, DEBUG)
// and production presets and stamps every record with the service name and
// environment. Context extractors copy request-scoped values into every
// record logged with a context.
//
//	log := logger.New(logger.WithEnvironment(cfg.Env, "substrack"))
//	log.InfoContext(ctx, "subscriber created",
//		logger.MerchantID(merchantID),
//		logger.SubscriberID(sub.ID),
//	)
package logger
