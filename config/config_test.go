package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig_Defaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("webhook.secret", "whsec_test")

	cfg, err := ParseConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Webhook.Tolerance)
	assert.False(t, cfg.Reconcile.HeuristicFallback)
	assert.Equal(t, 30*time.Minute, cfg.Reconcile.HeuristicWindow)
	assert.Zero(t, cfg.Reconcile.SucceededDelay)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
}

func TestParseConfig_RequiresWebhookSecret(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	_, err := ParseConfig(v)
	assert.ErrorContains(t, err, "webhook.secret")
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET", "from-env")
	t.Setenv("RECONCILE_HEURISTIC_FALLBACK", "true")

	v, err := LoadConfig()
	require.NoError(t, err)

	cfg, err := ParseConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Webhook.Secret)
	assert.True(t, cfg.Reconcile.HeuristicFallback)
}
