package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestSetDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	SetDefaults()

	assert.Equal(t, 3, viper.GetInt("rabbitmq.max_retries"))
	assert.Equal(t, "8080", viper.GetString("server.http.port"))
	assert.Equal(t, "OrderSagaWorker", viper.GetString("otel.service_name"))
	assert.False(t, viper.GetBool("worker.stalled.redrive"))
}

func TestMustInit_EnvOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Chdir(t.TempDir())
	t.Setenv("RABBITMQ_MAX_RETRIES", "7")
	t.Setenv("LOGGER_FORMAT", "text")

	assert.NotPanics(t, MustInit)
	assert.Equal(t, 7, viper.GetInt("rabbitmq.max_retries"))
	assert.Equal(t, "text", viper.GetString("logger.format"))
}
