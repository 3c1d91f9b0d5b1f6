package device

import (
	"sync"
	"testing"
)

func TestCommandBit(t *testing.T) {
	c := NewCommandBit(false)
	if c.Enabled() {
		t.Fatal("expected disabled")
	}
	if !c.Toggle() || !c.Enabled() {
		t.Fatal("toggle should enable")
	}
	c.Set(false)
	if c.Enabled() {
		t.Fatal("Set(false) ignored")
	}
}

func TestCommandBitConcurrentToggle(t *testing.T) {
	c := NewCommandBit(false)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Toggle()
		}()
	}
	wg.Wait()
	if c.Enabled() {
		t.Error("an even number of toggles should leave the bit unchanged")
	}
}
