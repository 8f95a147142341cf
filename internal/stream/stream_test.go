package stream

import (
	"sync"
	"testing"
	"time"
)

func TestChannelDeliversInOrder(t *testing.T) {
	ch := NewChannel(8)
	ch.Publish(TypingStart("c1", "a1", "Dana"))
	ch.Publish(AgentMessage("c1", "a1", "Dana", "hello", "neutral", 1200*time.Millisecond))
	ch.Close()

	var got []Event
	for e := range ch.Events() {
		got = append(got, e)
	}
	if len(got) != 2 {
		t.Fatalf("received %d events, want 2", len(got))
	}
	if got[0].Type != TypeTypingStart || got[1].Type != TypeMessage {
		t.Fatalf("order = %q,%q, want typing_start,message", got[0].Type, got[1].Type)
	}
	if got[1].DelayMS != 1200 {
		t.Fatalf("delay_ms = %d, want 1200", got[1].DelayMS)
	}
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	ch := NewChannel(4)
	ch.Close()
	ch.Publish(Ready("c1"))
	ch.Close()

	if _, ok := <-ch.Events(); ok {
		t.Fatal("event received after close")
	}
}

func TestChannelDropsOldestWhenFull(t *testing.T) {
	ch := NewChannel(2)
	ch.Publish(TypingProgress("c1", "a1", 10))
	ch.Publish(TypingProgress("c1", "a1", 50))
	ch.Publish(TypingProgress("c1", "a1", 90))
	ch.Close()

	var got []Event
	for e := range ch.Events() {
		got = append(got, e)
	}
	if len(got) != 2 {
		t.Fatalf("received %d events, want 2", len(got))
	}
	if got[0].Percent != 50 || got[1].Percent != 90 {
		t.Fatalf("kept %d,%d, want newest 50,90", got[0].Percent, got[1].Percent)
	}
}

func TestTypingProgressClamps(t *testing.T) {
	if e := TypingProgress("c1", "a1", -5); e.Percent != 0 {
		t.Fatalf("percent = %d, want 0", e.Percent)
	}
	if e := TypingProgress("c1", "a1", 140); e.Percent != 100 {
		t.Fatalf("percent = %d, want 100", e.Percent)
	}
}

func TestRegistryAttachLookupDetach(t *testing.T) {
	r := NewRegistry(8)
	if _, ok := r.Lookup("c1"); ok {
		t.Fatal("lookup before attach should miss")
	}
	if r.Publish("c1", Ready("c1")) {
		t.Fatal("publish without consumer should report false")
	}

	ch := r.Attach("c1")
	if again := r.Attach("c1"); again != ch {
		t.Fatal("second attach returned a different channel")
	}
	if !r.Publish("c1", Ready("c1")) {
		t.Fatal("publish with consumer should report true")
	}
	if e := <-ch.Events(); e.Type != TypeReady {
		t.Fatalf("event type = %q, want ready", e.Type)
	}
	if r.Len() != 1 {
		t.Fatalf("registry size = %d, want 1", r.Len())
	}

	r.Detach("c1")
	if _, ok := r.Lookup("c1"); ok {
		t.Fatal("lookup after detach should miss")
	}
	if _, ok := <-ch.Events(); ok {
		t.Fatal("channel still open after detach")
	}
	r.Detach("c1")
}

func TestRegistryConcurrentPublishAndDetach(t *testing.T) {
	r := NewRegistry(16)
	ch := r.Attach("c1")

	done := make(chan struct{})
	go func() {
		for range ch.Events() {
		}
		close(done)
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Publish("c1", TypingProgress("c1", "a1", j))
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Detach("c1")
	}()
	wg.Wait()
	<-done
}
