package transport

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func withTimeout(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 2*time.Second)
}

func TestPushPullRoundTrip(t *testing.T) {
	pusher := NewPusher()
	if err := pusher.Bind("127.0.0.1:0"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer pusher.Close()

	addr := pusher.ln.Addr().String()

	puller := NewPuller()
	if err := puller.Connect(addr); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer puller.Close()

	// Give the accept loop a moment to register the connection before
	// Send round-robins across it.
	deadline := time.Now().Add(time.Second)
	for {
		pusher.mu.Lock()
		n := len(pusher.conns)
		pusher.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for puller to connect")
		}
		time.Sleep(time.Millisecond)
	}

	want := [][]byte{[]byte("hello"), []byte("world")}
	if err := pusher.Send(want); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ctx, cancel := withTimeout(t)
	defer cancel()

	got, err := puller.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestPullFanIn(t *testing.T) {
	puller := NewPuller()
	if err := puller.Bind("127.0.0.1:0"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer puller.Close()

	addr := puller.ln.Addr().String()

	const nSenders = 3
	senders := make([]*Pusher, nSenders)
	for i := range senders {
		p := NewPusher()
		if err := p.Connect(addr); err != nil {
			t.Fatalf("Connect: %v", err)
		}
		defer p.Close()
		senders[i] = p
	}

	for i, p := range senders {
		if err := p.Send([][]byte{[]byte{byte(i)}}); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	ctx, cancel := withTimeout(t)
	defer cancel()

	seen := map[byte]bool{}
	for i := 0; i < nSenders; i++ {
		frames, err := puller.Recv(ctx)
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		seen[frames[0][0]] = true
	}

	for i := 0; i < nSenders; i++ {
		if !seen[byte(i)] {
			t.Errorf("did not observe frame from sender %d", i)
		}
	}
}

func TestPubSubBroadcast(t *testing.T) {
	pub := NewPublisher()
	if err := pub.Bind("127.0.0.1:0"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer pub.Close()

	addr := pub.ln.Addr().String()

	const nSubs = 3
	subs := make([]*Subscriber, nSubs)
	for i := range subs {
		s := NewSubscriber()
		if err := s.Connect(addr); err != nil {
			t.Fatalf("Connect: %v", err)
		}
		defer s.Close()
		subs[i] = s
	}

	deadline := time.Now().Add(time.Second)
	for {
		pub.mu.Lock()
		n := len(pub.conns)
		pub.mu.Unlock()
		if n == nSubs {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for subscribers to connect")
		}
		time.Sleep(time.Millisecond)
	}

	if err := pub.Send([][]byte{[]byte("shutdown")}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ctx, cancel := withTimeout(t)
	defer cancel()

	for _, s := range subs {
		frames, err := s.Recv(ctx)
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if string(frames[0]) != "shutdown" {
			t.Errorf("got %q, want shutdown", frames[0])
		}
	}
}

func TestPairBindThenConnect(t *testing.T) {
	a := NewPair()
	if err := a.Bind("127.0.0.1:0"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer a.Close()

	addr := a.ln.Addr().String()

	b := NewPair()
	if err := b.Connect(addr); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer b.Close()

	if err := a.Send([][]byte{[]byte("count")}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ctx, cancel := withTimeout(t)
	defer cancel()

	frames, err := b.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(frames[0]) != "count" {
		t.Errorf("got %q, want count", frames[0])
	}
}

func TestMultiplexFairness(t *testing.T) {
	a := NewPair()
	if err := a.Bind("127.0.0.1:0"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer a.Close()
	b := NewPair()
	if err := b.Connect(a.ln.Addr().String()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer b.Close()

	c := NewPair()
	if err := c.Bind("127.0.0.1:0"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer c.Close()
	d := NewPair()
	if err := d.Connect(c.ln.Addr().String()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events := Multiplex(ctx, map[string]Receiver{"a": b, "c": c})

	if err := a.Send([][]byte{[]byte("from-a")}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := d.Send([][]byte{[]byte("from-d")}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case ev := <-events:
			if ev.Err != nil {
				t.Fatalf("event error: %v", ev.Err)
			}
			seen[ev.Source] = true
		case <-ctx.Done():
			t.Fatal("timed out waiting for multiplexed events")
		}
	}

	if !seen["a"] || !seen["c"] {
		t.Errorf("expected events from both sources, got %v", seen)
	}
}
