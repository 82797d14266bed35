package ingestion

import (
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

func TestWatchSignals_SecondSignalIgnored(t *testing.T) {
	sigCh := make(chan os.Signal, 2)
	done := make(chan struct{})
	var cancels atomic.Int32

	exited := make(chan struct{})
	go func() {
		WatchSignals(done, sigCh, func() { cancels.Add(1) }, nil)
		close(exited)
	}()

	sigCh <- os.Interrupt
	sigCh <- syscall.SIGTERM

	deadline := time.After(time.Second)
	for len(sigCh) > 0 {
		select {
		case <-deadline:
			t.Fatal("signals not consumed")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	// Give the watcher a moment to process the last signal.
	time.Sleep(10 * time.Millisecond)

	close(done)
	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("WatchSignals did not return after done")
	}

	if got := cancels.Load(); got != 1 {
		t.Errorf("Expected exactly one cancel, got %d", got)
	}
}

func TestWatchSignals_ReturnsOnDone(t *testing.T) {
	sigCh := make(chan os.Signal)
	done := make(chan struct{})
	close(done)

	called := false
	WatchSignals(done, sigCh, func() { called = true }, nil)
	if called {
		t.Error("Cancel must not run without a signal")
	}
}
