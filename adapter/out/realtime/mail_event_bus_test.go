package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mailagent/core/domain"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := NewEventBus(zerolog.Nop())

	ch1 := bus.Subscribe("u1")
	ch2 := bus.Subscribe("u1")

	if err := bus.Publish(context.Background(), "u1", domain.NewEvent(domain.EventNewEmails, "u1", map[string]any{"count": 3})); err != nil {
		t.Fatal(err)
	}

	for i, ch := range []<-chan *domain.Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Type != domain.EventNewEmails {
				t.Errorf("subscriber %d got type %q", i, ev.Type)
			}
			if ev.Seq == 0 {
				t.Errorf("subscriber %d event has no sequence", i)
			}
		default:
			t.Errorf("subscriber %d got nothing", i)
		}
	}
}

func TestPublishIsolatesUsers(t *testing.T) {
	bus := NewEventBus(zerolog.Nop())

	chA := bus.Subscribe("a")
	chB := bus.Subscribe("b")

	bus.Publish(context.Background(), "a", domain.NewEvent(domain.EventProcessStarted, "a", nil))

	select {
	case <-chB:
		t.Error("user b received user a's event")
	default:
	}
	select {
	case <-chA:
	default:
		t.Error("user a received nothing")
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := NewEventBus(zerolog.Nop())
	if err := bus.Publish(context.Background(), "ghost", domain.NewEvent(domain.EventSummarySaved, "ghost", nil)); err != nil {
		t.Fatal(err)
	}
}

func TestFullBufferDropsInsteadOfBlocking(t *testing.T) {
	bus := NewEventBus(zerolog.Nop())
	bus.Subscribe("u1") // never drained

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			bus.Publish(context.Background(), "u1", domain.NewEvent(domain.EventProcessComplete, "u1", nil))
		}
	}()

	select {
	case <-done:
	default:
		// the goroutine may still be running; wait for it
		<-done
	}
	if bus.dropped == 0 {
		t.Error("expected drops once the buffer filled")
	}
}

func TestPublishDuringChurnDoesNotPanic(t *testing.T) {
	bus := NewEventBus(zerolog.Nop())

	stop := make(chan struct{})
	var wg sync.WaitGroup

	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					bus.Publish(context.Background(), "u1", domain.NewEvent(domain.EventProcessComplete, "u1", nil))
				}
			}
		}()
	}

	for c := 0; c < 4; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 64; i++ {
				ch := bus.Subscribe("u1")
				bus.Unsubscribe("u1", ch)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(stop)
	wg.Wait()
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewEventBus(zerolog.Nop())
	ch := bus.Subscribe("u1")
	bus.Unsubscribe("u1", ch)

	if _, open := <-ch; open {
		t.Error("channel still open after unsubscribe")
	}
	if bus.ConnectedCount() != 0 {
		t.Error("user entry not cleaned up")
	}
}
