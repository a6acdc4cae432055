package heart

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ncolony/ncolony/internal/ncspec"
)

func TestStartNoConfigIsNoop(t *testing.T) {
	os.Unsetenv(ncspec.EnvNameConfig)
	stop, err := Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if stop != nil {
		t.Fatal("expected nil stop func with no NCOLONY_CONFIG")
	}
}

func TestStartNoBeatcheckExtensionIsNoop(t *testing.T) {
	t.Setenv(ncspec.EnvNameConfig, `{"args":["/bin/true"]}`)
	stop, err := Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if stop != nil {
		t.Fatal("expected nil stop func with no beatcheck extension")
	}
}

func TestStartTouchesStatusPeriodically(t *testing.T) {
	dir := t.TempDir()
	statusPath := filepath.Join(dir, "status")
	t.Setenv(ncspec.EnvNameConfig, `{"args":["/bin/true"],"beatcheck":{"status":"`+statusPath+`","period":0.03}}`)
	t.Setenv(ncspec.EnvNameName, "web")

	stop, err := Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if stop == nil {
		t.Fatal("expected a non-nil stop func")
	}
	defer stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(statusPath); err == nil {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("status path was never touched")
}

func TestStopStopsTouching(t *testing.T) {
	dir := t.TempDir()
	statusPath := filepath.Join(dir, "status")
	t.Setenv(ncspec.EnvNameConfig, `{"args":["/bin/true"],"beatcheck":{"status":"`+statusPath+`","period":0.03}}`)
	t.Setenv(ncspec.EnvNameName, "web")

	stop, err := Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(statusPath); err == nil {
			break
		}
		time.Sleep(time.Millisecond)
	}
	stop()

	info, err := os.Stat(statusPath)
	if err != nil {
		t.Fatalf("stat after stop: %v", err)
	}
	last := info.ModTime()
	time.Sleep(100 * time.Millisecond)
	info2, err := os.Stat(statusPath)
	if err != nil {
		t.Fatalf("stat after stop: %v", err)
	}
	if !info2.ModTime().Equal(last) {
		t.Fatal("status kept being touched after stop was called")
	}
}
