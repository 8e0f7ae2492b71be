package idgen_test

import (
	"regexp"
	"sync"
	"testing"

	"github.com/artpar/relayledger/adapters/idgen"
)

func TestUUID_New(t *testing.T) {
	g := idgen.UUID{Prefix: "inv_"}

	id := g.New()

	re := regexp.MustCompile(`^inv_[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	if !re.MatchString(id) {
		t.Errorf("ID %s doesn't match prefixed UUID v4 format", id)
	}
}

func TestSequential_Concurrent(t *testing.T) {
	g := idgen.NewSequential("ep_")

	var (
		mu   sync.Mutex
		seen = map[string]bool{}
		wg   sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := g.New()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != 50 {
		t.Errorf("got %d unique ids, want 50", len(seen))
	}
	if next := g.New(); next != "ep_51" {
		t.Errorf("next id = %s, want ep_51", next)
	}
}
