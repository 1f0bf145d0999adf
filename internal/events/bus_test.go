package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingObserver struct {
	NullObserver
	mu   sync.Mutex
	seen []string
}

func (r *recordingObserver) FileReconstructed(e FileReconstructedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, e.FileName)
}

func TestBusFansOutToAllObservers(t *testing.T) {
	bus := NewBus()
	a := &recordingObserver{}
	b := &recordingObserver{}
	bus.Subscribe(a)
	bus.Subscribe(b)

	bus.FileReconstructed(FileReconstructedEvent{FileName: "f.bin"})

	assert.Equal(t, []string{"f.bin"}, a.seen)
	assert.Equal(t, []string{"f.bin"}, b.seen)
}

func TestBusSubscribeIsConcurrencySafe(t *testing.T) {
	bus := NewBus()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Subscribe(&recordingObserver{})
			bus.Warning(WarningEvent{Source: "test", Message: "hi"})
		}()
	}
	wg.Wait()
}

func TestBridgeObserverDropsOnFullBuffer(t *testing.T) {
	bridge := NewBridgeObserver()
	ch := bridge.Subscribe(1)

	bridge.Warning(WarningEvent{Source: "x", Message: "one"})
	bridge.Warning(WarningEvent{Source: "x", Message: "two"}) // buffer full, dropped

	env := <-ch
	assert.Equal(t, "warning", env.Type)
	select {
	case <-ch:
		t.Fatal("expected no second event, buffer should have dropped it")
	default:
	}
}
