package e2e

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"cshealth/internal/app"
	"cshealth/internal/clock"
	"cshealth/internal/config"
)

const serviceStopTimeout = 8 * time.Second

// newServiceFromConfig builds a service from one TOML file.
func newServiceFromConfig(t *testing.T, path string) *app.Service {
	t.Helper()

	source, err := config.FromCLI(path, "")
	if err != nil {
		t.Fatalf("config source %s: %v", path, err)
	}
	service, err := app.NewService(source, clock.RealClock{})
	if err != nil {
		t.Fatalf("new service from %s: %v", path, err)
	}
	return service
}

// runService runs the service until the returned cancel is called.
// Params: test handle and built service.
// Returns: cancel callback and channel receiving the Run result.
func runService(t *testing.T, service *app.Service) (context.CancelFunc, <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		done <- service.Run(ctx)
	}()
	return cancel, done
}

// waitReady blocks until the readiness probe on port answers 200.
func waitReady(t *testing.T, port int) {
	t.Helper()
	probe := fmt.Sprintf("http://127.0.0.1:%d/readyz", port)
	waitFor(t, serviceStopTimeout, func() bool {
		response, err := http.Get(probe)
		if err != nil {
			return false
		}
		defer response.Body.Close()
		return response.StatusCode == http.StatusOK
	})
}

// waitServiceStop fails the test unless Run returned nil within the stop timeout.
func waitServiceStop(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("service run: %v", err)
		}
	case <-time.After(serviceStopTimeout):
		t.Fatalf("service still running %s after cancel", serviceStopTimeout)
	}
}
