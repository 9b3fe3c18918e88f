package keylock

import (
	"sync"
	"testing"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	k := New()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k.Lock("a")
			counter++
			k.Unlock("a")
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Errorf("counter = %d, want 100", counter)
	}
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	k := New()
	k.Lock("a")

	done := make(chan struct{})
	go func() {
		k.Lock("b")
		k.Unlock("b")
		close(done)
	}()

	<-done
	k.Unlock("a")
}

func TestKeyedMutex_EntriesReclaimed(t *testing.T) {
	k := New()
	k.Lock("a")
	k.Unlock("a")

	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.entries) != 0 {
		t.Errorf("entries = %d, want 0 after release", len(k.entries))
	}
}
