package telemetry_test

import (
	"context"
	"testing"

	"github.com/moltboard/platform/internal/config"
	"github.com/moltboard/platform/internal/telemetry"
)

func TestInit_Disabled(t *testing.T) {
	shutdown, err := telemetry.Init(config.TelemetryConfig{Enabled: false}, "test")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestInit_EnabledWithoutEndpointIsDisabled(t *testing.T) {
	shutdown, err := telemetry.Init(config.TelemetryConfig{Enabled: true}, "test")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if shutdown == nil {
		t.Fatal("nil shutdown")
	}
}
