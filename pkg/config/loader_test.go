package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/substrack/pkg/config"
)

type sampleConfig struct {
	Name     string        `env:"NAME" envDefault:"substrack"`
	Interval time.Duration `env:"INTERVAL" envDefault:"1h"`
	Secret   string        `env:"SECRET,required"`
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("defaults and values", func(t *testing.T) {
		t.Parallel()
		var cfg sampleConfig
		err := config.Load(&cfg, config.WithEnvironment(map[string]string{"SECRET": "s3cret"}))
		require.NoError(t, err)
		assert.Equal(t, "substrack", cfg.Name)
		assert.Equal(t, time.Hour, cfg.Interval)
		assert.Equal(t, "s3cret", cfg.Secret)
	})

	t.Run("prefix", func(t *testing.T) {
		t.Parallel()
		var cfg sampleConfig
		err := config.Load(&cfg,
			config.WithPrefix("APP_"),
			config.WithEnvironment(map[string]string{"APP_SECRET": "x", "APP_INTERVAL": "5m"}),
		)
		require.NoError(t, err)
		assert.Equal(t, 5*time.Minute, cfg.Interval)
	})

	t.Run("missing required", func(t *testing.T) {
		t.Parallel()
		var cfg sampleConfig
		err := config.Load(&cfg, config.WithEnvironment(map[string]string{}))
		require.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("nil pointer", func(t *testing.T) {
		t.Parallel()
		assert.ErrorIs(t, config.Load[sampleConfig](nil), config.ErrNilPointer)
		assert.Panics(t, func() {
			var cfg sampleConfig
			config.MustLoad(&cfg, config.WithEnvironment(map[string]string{}))
		})
	})
}
