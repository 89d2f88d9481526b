package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivepulse/drivepulse/internal/telemetry"
)

func TestInit_Disabled(t *testing.T) {
	provider, err := telemetry.Init(context.Background(), telemetry.Config{Enabled: false})
	require.NoError(t, err)

	assert.Nil(t, provider.TracerProvider)
	assert.Nil(t, provider.MeterProvider)
	assert.NotNil(t, provider.Tracer)
	assert.NotNil(t, provider.Meter)

	_, span := provider.Tracer.Start(context.Background(), "noop")
	span.End()

	assert.NoError(t, provider.Shutdown(context.Background()))
}
