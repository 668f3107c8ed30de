package transport

import "context"

// Event is one frame set read off a named Receiver registered with
// Multiplex.
type Event struct {
	Source string
	Frames [][]byte
	Err    error
}

// Multiplex fans multiple Receivers into one channel, fairly interleaved
// by the runtime's select statement. This is the Go-idiomatic stand-in for
// the level-triggered poller scaffolds and workers use to watch their data
// and control sockets at once (spec.md §4.3, §4.6, §9).
func Multiplex(ctx context.Context, sources map[string]Receiver) <-chan Event {
	out := make(chan Event)

	for name, recv := range sources {
		go func(name string, recv Receiver) {
			for {
				frames, err := recv.Recv(ctx)
				select {
				case out <- Event{Source: name, Frames: frames, Err: err}:
				case <-ctx.Done():
					return
				}
				if err != nil {
					return
				}
			}
		}(name, recv)
	}

	return out
}
