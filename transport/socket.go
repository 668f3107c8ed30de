// Package transport implements the scaffold/worker socket fabric: loopback
// TCP stand-ins for the data-plane push/pull sockets and the control-plane
// pub/sub and pair sockets spec.md describes, each carrying the atomic
// multi-frame envelope message.Send/Recv expect. No ZeroMQ/nanomsg binding
// exists anywhere in the retrieved example corpus, so the fabric is built
// directly on net.Listen/net.Dial — see DESIGN.md for that justification.
package transport

import "context"

// Sender is a socket that can push/publish frames.
type Sender interface {
	Send(frames [][]byte) error
	Close() error
}

// Receiver is a socket that can pull/subscribe to frames.
type Receiver interface {
	Recv(ctx context.Context) ([][]byte, error)
	Close() error
}

// Socket binds or connects a Sender/Receiver to a loopback address.
type Socket interface {
	Bind(addr string) error
	Connect(addr string) error
}
