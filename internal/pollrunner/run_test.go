package pollrunner

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ncolony/ncolony/internal/clock"
)

func testLog(buf *bytes.Buffer) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(buf)
	return logrus.NewEntry(l)
}

func TestRunCallsPollOnEveryTick(t *testing.T) {
	var buf bytes.Buffer
	fc := clock.NewFake(time.Now())
	ctx, cancel := context.WithCancel(context.Background())

	var calls int32
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, fc, time.Second, testLog(&buf), func() error {
			atomic.AddInt32(&calls, 1)
			return nil
		})
	}()

	// Let Run register its ticker before advancing.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && atomic.LoadInt32(&calls) == 0 {
		fc.Advance(time.Second)
		time.Sleep(time.Millisecond)
	}
	if atomic.LoadInt32(&calls) == 0 {
		t.Fatal("poll was never called")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunLogsPollErrors(t *testing.T) {
	var buf bytes.Buffer
	fc := clock.NewFake(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	failing := errors.New("disk is gone")
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, fc, time.Second, testLog(&buf), func() error {
			return failing
		})
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !bytes.Contains(buf.Bytes(), []byte("disk is gone")) {
		fc.Advance(time.Second)
		time.Sleep(time.Millisecond)
	}
	if !bytes.Contains(buf.Bytes(), []byte("disk is gone")) {
		t.Fatalf("expected the poll error to be logged, got %q", buf.String())
	}
}
