package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
)

// Pair is the exclusive single-connection channel used between two
// consecutive scaffolds to carry the one-shot ExpectedNItems count. One
// side binds, the other connects; Send/Recv block until the connection is
// established.
type Pair struct {
	mu   sync.Mutex
	conn net.Conn
	ln   net.Listener
	once sync.Once
	rdy  chan struct{}
}

// NewPair returns an unbound, unconnected Pair.
func NewPair() *Pair {
	return &Pair{rdy: make(chan struct{})}
}

// Bind listens for exactly one peer connection.
func (p *Pair) Bind(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("transport: pair bind %s: %w", addr, err)
	}
	p.ln = ln

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		p.setConn(conn)
	}()
	return nil
}

// Connect dials the peer's bound address.
func (p *Pair) Connect(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("transport: pair connect %s: %w", addr, err)
	}
	p.setConn(conn)
	return nil
}

func (p *Pair) setConn(conn net.Conn) {
	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
	p.once.Do(func() { close(p.rdy) })
}

// Send writes frames once the peer connection is established.
func (p *Pair) Send(frames [][]byte) error {
	<-p.rdy
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	return writeFrames(conn, frames)
}

// Recv reads one frame set once the peer connection is established. Once
// the peer has closed the connection cleanly (as a scaffold does after
// sending its one-shot count), Recv waits for ctx to be done.
func (p *Pair) Recv(ctx context.Context) ([][]byte, error) {
	select {
	case <-p.rdy:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()

	type result struct {
		frames [][]byte
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		f, err := readFrames(conn)
		ch <- result{frames: f, err: err}
	}()

	select {
	case r := <-ch:
		if r.err == io.EOF {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return r.frames, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close tears down the listener, if any, and the peer connection.
func (p *Pair) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ln != nil {
		_ = p.ln.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	return nil
}
