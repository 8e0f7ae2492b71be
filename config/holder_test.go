package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/relayledger/config"
)

type reloadCounter struct {
	mu     sync.Mutex
	ok     int
	failed int
}

func (r *reloadCounter) ObserveConfigReload(err error, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failed++
		return
	}
	r.ok++
}

func TestHolder_Get(t *testing.T) {
	h, err := config.NewHolder(writeConfig(t, validConfig()), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	got := h.Get()
	if got == nil {
		t.Fatal("Get returned nil")
	}
	if got.Billing.Thresholds.Grace != 30 {
		t.Errorf("Grace = %d, want 30", got.Billing.Thresholds.Grace)
	}
}

func TestHolder_ReloadThresholds(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	counter := &reloadCounter{}
	h.SetObserver(counter)

	var seen int
	h.OnChange(func(c *config.Config) { seen = c.Billing.Thresholds.Grace })

	newContent := `
billing:
  thresholds:
    grace: 14
    past_due: 30
    final_warning: 45
    delinquent: 60
`
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}
	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	if got := h.Get().Billing.Thresholds.Grace; got != 14 {
		t.Errorf("reloaded Grace = %d, want 14", got)
	}
	if seen != 14 {
		t.Errorf("OnChange saw Grace = %d, want 14", seen)
	}
	if counter.ok != 1 || counter.failed != 0 {
		t.Errorf("observer ok=%d failed=%d, want 1/0", counter.ok, counter.failed)
	}
}

func TestHolder_ReloadInvalidConfigKeepsOld(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	counter := &reloadCounter{}
	h.SetObserver(counter)
	called := false
	h.OnChange(func(*config.Config) { called = true })

	bad := `
billing:
  thresholds:
    grace: 90
    past_due: 45
    final_warning: 60
    delinquent: 30
`
	if err := os.WriteFile(path, []byte(bad), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := h.Reload(); err == nil {
		t.Fatal("expected reload error")
	}

	if h.Get().Billing.Thresholds.Grace != 30 {
		t.Error("old config should be kept after failed reload")
	}
	if called {
		t.Error("OnChange must not fire for a failed reload")
	}
	if counter.failed != 1 {
		t.Errorf("observer failed = %d, want 1", counter.failed)
	}
}

func TestHolder_WatchFile(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	changed := make(chan int, 4)
	h.OnChange(func(c *config.Config) {
		select {
		case changed <- c.Billing.Thresholds.Grace:
		default:
		}
	})

	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile error: %v", err)
	}

	newContent := `
billing:
  thresholds:
    grace: 7
    past_due: 14
    final_warning: 21
    delinquent: 28
`
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case grace := <-changed:
			if grace == 7 {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for file reload")
		}
	}
}

func TestHolder_ConcurrentAccess(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if h.Get() == nil {
					t.Error("Get returned nil")
				}
			}
		}()
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Reload()
		}()
	}
	wg.Wait()
}

func TestHolder_StopTwice(t *testing.T) {
	h, err := config.NewHolder(writeConfig(t, validConfig()), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	h.Stop()
	h.Stop()
}

func TestReloadableFields(t *testing.T) {
	fields := config.ReloadableFields()
	want := map[string]bool{"billing.thresholds": true, "logging.level": true}
	for _, f := range fields {
		delete(want, f)
	}
	if len(want) != 0 {
		t.Errorf("missing reloadable fields: %v", want)
	}

	for _, f := range config.NonReloadableFields() {
		if f == "billing.thresholds" {
			t.Error("billing.thresholds must be reloadable")
		}
	}
}

func validConfig() string {
	return `
database:
  driver: memory

billing:
  thresholds:
    grace: 30
    past_due: 45
    final_warning: 60
    delinquent: 90
`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "relayledger.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
