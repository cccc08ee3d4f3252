package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"taskmanagement-api/internal/config"
)

func TestSetupNoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{OTLPEndpoint: "  "})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupCreatesProviderWhenEndpointSet(t *testing.T) {
	// Non-routable address; nothing is exported because no spans are started.
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{
		OTLPEndpoint: "http://192.0.2.1:4318",
		ServiceName:  "taskapi-test",
	})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
