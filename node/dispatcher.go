// Package node provides the dispatcher scaffolding shared by both
// relay and client nodes: a bounded inbox of received packets, a
// single goroutine draining it through a per-tag handler table, and a
// bounded worker pool for outbound sends so handlers never block on
// transport I/O.
package node

import (
	"context"
	"log/slog"
	"sync"

	"github.com/starboi-63/poqr/channel"
)

// HandlerFunc processes one received packet. It must not perform
// blocking I/O; outbound sends belong on a SendPool.
type HandlerFunc func(ctx context.Context, pkt channel.Packet)

// HandlerTable maps a dispatch key to the handler responsible for it.
// The dispatch key is caller-defined (e.g. a message tag or a
// (msgTag, relayTag) pair encoded as a small integer) so relay and
// client nodes can each register only the handlers their role needs.
type HandlerTable map[int]HandlerFunc

// Dispatcher drains a bounded inbox with a single goroutine, invoking
// the registered handler for each packet's key. Because exactly one
// goroutine calls handlers, handlers may freely touch node-local state
// (circuit tables, per-circuit state machines) without additional
// locking.
type Dispatcher struct {
	Inbox    chan channel.Packet
	handlers HandlerTable
	keyOf    func(channel.Packet) int
	logger   *slog.Logger
}

// NewDispatcher constructs a Dispatcher with the given inbox capacity,
// handler table, and key function.
func NewDispatcher(inboxCapacity int, handlers HandlerTable, keyOf func(channel.Packet) int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		Inbox:    make(chan channel.Packet, inboxCapacity),
		handlers: handlers,
		keyOf:    keyOf,
		logger:   logger,
	}
}

// Run drains the inbox until ctx is cancelled. A packet whose key has
// no registered handler is logged and dropped.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-d.Inbox:
			if !ok {
				return
			}
			handler, found := d.handlers[d.keyOf(pkt)]
			if !found {
				d.logger.Warn("node: dropping packet with no registered handler", "circuitID", pkt.CircuitID)
				continue
			}
			handler(ctx, pkt)
		}
	}
}

// SendPool runs a bounded number of workers pulling send jobs off a
// queue, so a blocking transport write in one handler's outbound send
// never stalls the dispatcher goroutine.
type SendPool struct {
	jobs chan func()
	wg   sync.WaitGroup
}

// NewSendPool starts workers goroutines draining a job queue of the
// given capacity.
func NewSendPool(workers, queueCapacity int) *SendPool {
	p := &SendPool{jobs: make(chan func(), queueCapacity)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				job()
			}
		}()
	}
	return p
}

// Submit enqueues a send job. It blocks if the queue is full.
func (p *SendPool) Submit(job func()) {
	p.jobs <- job
}

// Close stops accepting new jobs and waits for workers to drain the
// queue.
func (p *SendPool) Close() {
	close(p.jobs)
	p.wg.Wait()
}
