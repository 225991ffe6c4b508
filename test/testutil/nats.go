package testutil

import (
	"net"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

const natsStopGrace = 5 * time.Second

// FreePort asks the kernel for an unused loopback TCP port.
// Params: none.
// Returns: port number or listen error.
func FreePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

type natsProcess struct {
	cmd  *exec.Cmd
	once sync.Once
}

// stop sends SIGTERM and kills the process if it does not exit in time.
func (p *natsProcess) stop() {
	p.once.Do(func() {
		if p.cmd.Process == nil {
			return
		}
		_ = p.cmd.Process.Signal(syscall.SIGTERM)
		exited := make(chan struct{})
		go func() {
			_, _ = p.cmd.Process.Wait()
			close(exited)
		}()
		select {
		case <-exited:
		case <-time.After(natsStopGrace):
			_ = p.cmd.Process.Kill()
			<-exited
		}
	})
}

// StartLocalNATSServer runs nats-server with JetStream in a temp store directory.
// Params: test handle; the test is skipped when nats-server is not on PATH.
// Returns: client URL and idempotent stop callback (also registered as cleanup).
func StartLocalNATSServer(tb testing.TB) (string, func()) {
	tb.Helper()

	port, err := FreePort()
	if err != nil {
		tb.Fatalf("free port: %v", err)
	}
	process := &natsProcess{
		cmd: exec.Command("nats-server", "-js", "-a", "127.0.0.1", "-p", strconv.Itoa(port), "-sd", tb.TempDir()),
	}
	if err := process.cmd.Start(); err != nil {
		tb.Skipf("nats-server is required for JetStream tests: %v", err)
	}
	tb.Cleanup(process.stop)

	url := "nats://127.0.0.1:" + strconv.Itoa(port)
	WaitForNATSReady(tb, url, 8*time.Second)
	return url, process.stop
}

// WaitForNATSReady polls until the server accepts connections and JetStream answers.
// Params: test handle, server URL, and overall timeout.
// Returns: on success; fails the test on timeout.
func WaitForNATSReady(tb testing.TB, url string, timeout time.Duration) {
	tb.Helper()

	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		lastErr = jetStreamReady(url)
		if lastErr == nil {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	tb.Fatalf("jetstream not ready at %s: %v", url, lastErr)
}

func jetStreamReady(url string) error {
	nc, err := nats.Connect(url, nats.Timeout(time.Second))
	if err != nil {
		return err
	}
	defer nc.Close()
	js, err := nc.JetStream()
	if err != nil {
		return err
	}
	_, err = js.AccountInfo()
	return err
}
