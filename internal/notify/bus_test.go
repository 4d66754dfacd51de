package notify

import (
	"sync"
	"testing"
	"time"
)

func TestBusDeliversInOrder(t *testing.T) {
	b := NewBus(8, nil)

	var mu sync.Mutex
	var got []string
	b.Subscribe(func(e Event) {
		mu.Lock()
		got = append(got, e.Kind)
		mu.Unlock()
	})

	b.Publish(Event{Kind: "one"})
	b.Publish(Event{Kind: "two"})
	b.Publish(Event{Kind: "three"})
	b.Close()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"one", "two", "three"}
	if len(got) != len(want) {
		t.Fatalf("delivered %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delivered %v, want %v", got, want)
		}
	}
}

func TestBusSetsTimestamp(t *testing.T) {
	b := NewBus(1, nil)

	var mu sync.Mutex
	var at time.Time
	b.Subscribe(func(e Event) {
		mu.Lock()
		at = e.Timestamp
		mu.Unlock()
	})

	b.Publish(Event{Kind: "stamped"})
	b.Close()

	mu.Lock()
	defer mu.Unlock()
	if at.IsZero() {
		t.Error("Publish should stamp events missing a timestamp")
	}
}

func TestBusDropsOldestWhenFull(t *testing.T) {
	b := NewBus(2, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var got []string
	b.Subscribe(func(e Event) {
		mu.Lock()
		got = append(got, e.Kind)
		mu.Unlock()
		if e.Kind == "first" {
			close(started)
			<-release
		}
	})

	// Occupy the dispatcher so pending events pile up in the queue
	b.Publish(Event{Kind: "first"})
	<-started

	b.Publish(Event{Kind: "a"})
	b.Publish(Event{Kind: "b"})
	b.Publish(Event{Kind: "c"}) // full queue: "a" is evicted

	close(release)
	b.Close()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"first", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("delivered %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delivered %v, want %v", got, want)
		}
	}
}

func TestBusCloseIsIdempotent(t *testing.T) {
	b := NewBus(4, nil)
	b.Close()
	b.Close()
	b.Publish(Event{Kind: "late"}) // no-op after close
}

func TestBusPublishDuringCloseDoesNotPanic(t *testing.T) {
	for iter := 0; iter < 50; iter++ {
		b := NewBus(4, nil)

		start := make(chan struct{})
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						t.Errorf("Publish panicked: %v", r)
					}
				}()
				<-start
				for j := 0; j < 100; j++ {
					b.Publish(Event{Kind: "tick"})
				}
			}()
		}

		close(start)
		b.Close()
		wg.Wait()
	}
}
