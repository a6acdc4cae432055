package clock

import (
	"testing"
	"time"
)

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	ch := f.After(5 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before Advance")
	default:
	}

	f.Advance(5 * time.Second)
	select {
	case got := <-ch:
		if !got.Equal(start.Add(5 * time.Second)) {
			t.Fatalf("fired at %v, want %v", got, start.Add(5*time.Second))
		}
	default:
		t.Fatal("After did not fire after Advance")
	}
}

func TestFakeAfterZeroFiresImmediately(t *testing.T) {
	f := NewFake(time.Now())
	ch := f.After(0)
	select {
	case <-ch:
	default:
		t.Fatal("zero-duration After did not fire immediately")
	}
}

func TestFakeTickerFiresRepeatedly(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)
	ticker := f.NewTicker(time.Second)

	count := 0
	for i := 0; i < 3; i++ {
		f.Advance(time.Second)
		select {
		case <-ticker.C():
			count++
		default:
		}
	}
	if count != 3 {
		t.Fatalf("ticker fired %d times over 3 periods, want 3", count)
	}
}

func TestFakeTickerStopSuppressesFutureFires(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)
	ticker := f.NewTicker(time.Second)
	ticker.Stop()

	f.Advance(10 * time.Second)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestFakeNowAdvances(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)
	f.Advance(2 * time.Hour)
	if !f.Now().Equal(start.Add(2 * time.Hour)) {
		t.Fatalf("Now() = %v, want %v", f.Now(), start.Add(2*time.Hour))
	}
}
