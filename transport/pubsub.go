package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
)

// Publisher is the control-plane broadcast side. It always binds and
// writes every Send to every currently-connected Subscriber, dropping any
// peer that fails to accept a write.
type Publisher struct {
	mu    sync.Mutex
	ln    net.Listener
	conns []net.Conn
}

// NewPublisher returns an unbound Publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Bind listens for Subscriber connections.
func (p *Publisher) Bind(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("transport: pub bind %s: %w", addr, err)
	}
	p.ln = ln
	go p.acceptLoop()
	return nil
}

func (p *Publisher) acceptLoop() {
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		p.mu.Lock()
		p.conns = append(p.conns, conn)
		p.mu.Unlock()
	}
}

// Send broadcasts frames to every connected subscriber. A subscriber that
// fails to accept the write is dropped; broadcast is best-effort since a
// stage's shutdown signal must reach whichever workers are still alive,
// not block on the ones that already exited.
func (p *Publisher) Send(frames [][]byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	alive := p.conns[:0]
	for _, c := range p.conns {
		if err := writeFrames(c, frames); err != nil {
			_ = c.Close()
			continue
		}
		alive = append(alive, c)
	}
	p.conns = alive
	return nil
}

// Close shuts down the listener and every attached connection.
func (p *Publisher) Close() error {
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

// Subscriber is the control-plane receive side. It always connects to a
// Publisher's bound address and receives every broadcast frame set.
type Subscriber struct {
	receiver
}

// NewSubscriber returns an unconnected Subscriber.
func NewSubscriber() *Subscriber {
	return &Subscriber{receiver: newReceiver()}
}

// Connect dials the Publisher's bound address.
func (s *Subscriber) Connect(addr string) error {
	if _, err := s.receiver.connect(addr); err != nil {
		return fmt.Errorf("transport: sub connect %s: %w", addr, err)
	}
	return nil
}

// Recv blocks until a broadcast frame set or a context cancellation.
func (s *Subscriber) Recv(ctx context.Context) ([][]byte, error) {
	return s.receiver.recv(ctx)
}

// Close tears down the subscriber connection.
func (s *Subscriber) Close() error {
	return s.receiver.close()
}
