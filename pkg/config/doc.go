// Package config loads environment-driven configuration structs.
//
// Struct fields are described with caarlos0/env tags. A .env file in the
// working directory is applied once per process before the first Load, and
// never overrides variables already present in the environment.
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
package config
