package clock_test

import (
	"testing"
	"time"

	"github.com/artpar/relayledger/adapters/clock"
)

func TestReal_NowIsUTC(t *testing.T) {
	got := clock.Real{}.Now()

	if got.Location() != time.UTC {
		t.Errorf("Location = %v, want UTC", got.Location())
	}
	if d := time.Since(got); d < 0 || d > time.Second {
		t.Errorf("Now() is %v away from wall time", d)
	}
}

func TestFake(t *testing.T) {
	start := time.Date(2024, 2, 28, 12, 0, 0, 0, time.UTC)
	c := clock.NewFake(start)

	if !c.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", c.Now(), start)
	}

	c.Advance(time.Hour)
	if want := start.Add(time.Hour); !c.Now().Equal(want) {
		t.Errorf("after Advance: %v, want %v", c.Now(), want)
	}

	c.AdvanceDays(2)
	if want := time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC); !c.Now().Equal(want) {
		t.Errorf("after AdvanceDays: %v, want %v", c.Now(), want)
	}

	c.Set(start)
	if !c.Now().Equal(start) {
		t.Errorf("after Set: %v, want %v", c.Now(), start)
	}
}
