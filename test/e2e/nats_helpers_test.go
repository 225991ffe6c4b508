package e2e

import (
	"testing"
	"time"

	"cshealth/test/testutil"

	"github.com/nats-io/nats.go"
)

const (
	e2eReportStream = "CSHEALTH_REPORTS_E2E"
	e2eReportSubj   = "cshealth.e2e.reports"
	e2eBucket       = "alert_lifecycle_e2e"
)

// startLocalNATSServer starts a local JetStream NATS process for e2e tests.
// Params: testing handle for lifecycle/error reporting.
// Returns: server URL and stop callback.
func startLocalNATSServer(tb testing.TB) (string, func()) {
	return testutil.StartLocalNATSServer(tb)
}

// publishNATSReport publishes one raw report payload on core NATS.
// Params: server URL, subject, and JSON body.
// Returns: connect/publish/flush error.
func publishNATSReport(url, subject, body string) error {
	nc, err := nats.Connect(url)
	if err != nil {
		return err
	}
	defer nc.Close()
	if err := nc.Publish(subject, []byte(body)); err != nil {
		return err
	}
	return nc.FlushTimeout(3 * time.Second)
}
