package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
)

// Pusher is the data-plane send side. Bound, it accepts connections from
// many Pullers and round-robins Send across them (mirroring a PUSH
// socket's fan-out to connected peers); connected, it writes to the one
// peer it dialed.
type Pusher struct {
	mu    sync.Mutex
	cond  *sync.Cond
	ln    net.Listener
	conns []net.Conn
	next  int
}

// NewPusher returns an unbound, unconnected Pusher.
func NewPusher() *Pusher {
	p := &Pusher{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Bind listens for Puller connections.
func (p *Pusher) Bind(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("transport: push bind %s: %w", addr, err)
	}
	p.ln = ln
	go p.acceptLoop()
	return nil
}

func (p *Pusher) acceptLoop() {
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		p.mu.Lock()
		p.conns = append(p.conns, conn)
		p.cond.Broadcast()
		p.mu.Unlock()
	}
}

// Connect dials a single Puller bound elsewhere.
func (p *Pusher) Connect(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("transport: push connect %s: %w", addr, err)
	}
	p.mu.Lock()
	p.conns = append(p.conns, conn)
	p.cond.Broadcast()
	p.mu.Unlock()
	return nil
}

// Send writes frames to the next peer in round-robin order, blocking until
// at least one peer is attached.
func (p *Pusher) Send(frames [][]byte) error {
	p.mu.Lock()
	for len(p.conns) == 0 {
		p.cond.Wait()
	}
	conn := p.conns[p.next%len(p.conns)]
	p.next++
	p.mu.Unlock()

	return writeFrames(conn, frames)
}

// Close shuts down the listener, if any, and every attached connection.
func (p *Pusher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ln != nil {
		_ = p.ln.Close()
	}
	for _, c := range p.conns {
		_ = c.Close()
	}
	return nil
}

type recvResult struct {
	frames [][]byte
	err    error
}

// receiver is the shared fan-in machinery behind Puller and Subscriber:
// every attached connection is read from its own goroutine into one
// shared channel, so Recv is a single select regardless of how many peers
// are attached.
type receiver struct {
	ln        net.Listener
	msgs      chan recvResult
	done      chan struct{}
	closeOnce sync.Once
}

func newReceiver() receiver {
	return receiver{msgs: make(chan recvResult, 64), done: make(chan struct{})}
}

func (r *receiver) bind(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	r.ln = ln
	go r.acceptLoop()
	return nil
}

func (r *receiver) acceptLoop() {
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			return
		}
		go r.readLoop(conn)
	}
}

func (r *receiver) connect(addr string) (net.Conn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	go r.readLoop(conn)
	return conn, nil
}

func (r *receiver) readLoop(conn net.Conn) {
	defer conn.Close()
	for {
		frames, err := readFrames(conn)
		if err == io.EOF && r.ln == nil {
			// The peer this receiver dialed closed cleanly: nothing more
			// arrives on this connection, and Recv keeps waiting.
			return
		}
		select {
		case r.msgs <- recvResult{frames: frames, err: err}:
		case <-r.done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (r *receiver) recv(ctx context.Context) ([][]byte, error) {
	select {
	case res := <-r.msgs:
		return res.frames, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *receiver) close() error {
	r.closeOnce.Do(func() { close(r.done) })
	if r.ln != nil {
		_ = r.ln.Close()
	}
	return nil
}

// Puller is the data-plane receive side. Bound, it fans in frames from
// every connected Pusher (order across senders is unspecified, matching
// spec.md's fan-in ordering guarantee); connected, it reads from the one
// upstream Pusher it dialed.
type Puller struct {
	receiver
}

// NewPuller returns an unbound, unconnected Puller.
func NewPuller() *Puller {
	p := &Puller{receiver: newReceiver()}
	return p
}

// Bind listens for Pusher connections.
func (p *Puller) Bind(addr string) error {
	if err := p.receiver.bind(addr); err != nil {
		return fmt.Errorf("transport: pull bind %s: %w", addr, err)
	}
	return nil
}

// Connect dials a single Pusher bound elsewhere.
func (p *Puller) Connect(addr string) error {
	if _, err := p.receiver.connect(addr); err != nil {
		return fmt.Errorf("transport: pull connect %s: %w", addr, err)
	}
	return nil
}

// Recv blocks until a frame set or a context cancellation arrives. On a
// bound Puller, a read error on any attached connection, including a
// peer's disconnect, is returned as an error.
func (p *Puller) Recv(ctx context.Context) ([][]byte, error) {
	return p.receiver.recv(ctx)
}

// Close tears down the listener and all attached connections.
func (p *Puller) Close() error {
	return p.receiver.close()
}
