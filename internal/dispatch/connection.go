package dispatch

import (
	"context"

	"github.com/vircadia/world-realtime-core/internal/logging"
)

// job is one queued query awaiting its single per-connection worker.
type job struct {
	ctx      context.Context
	req      Request
	sourceID string
	token    string
	replyTo  chan<- Response
}

// Connection serializes query execution for one WebSocket connection: a
// single worker goroutine drains a buffered queue, so the store context
// installed for request N is never clobbered by request N+1 racing ahead,
// per spec.md §4.2 ("the dispatcher processes per-connection FIFO to
// preserve the store context between calls"). Directly grounded on the
// teacher's internal/services/command_dispatcher.go CommandDispatcher: one
// buffered channel, drained by worker goroutines reading in a for/select
// loop until a stop signal closes the loop.
type Connection struct {
	dispatcher *Dispatcher
	sessionID  string
	token      string

	queue  chan job
	stopCh chan struct{}
}

// NewConnection starts a per-connection FIFO worker bound to one session.
func (d *Dispatcher) NewConnection(sessionID, token string) *Connection {
	c := &Connection{
		dispatcher: d,
		sessionID:  sessionID,
		token:      token,
		queue:      make(chan job, 64),
		stopCh:     make(chan struct{}),
	}
	go c.worker()
	return c
}

func (c *Connection) worker() {
	log := logging.Dispatch()
	for {
		select {
		case j := <-c.queue:
			resp := c.dispatcher.Execute(j.ctx, c.sessionID, c.token, j.req)
			select {
			case j.replyTo <- resp:
			default:
				log.Warn().Str("request_id", j.req.RequestID).Msg("reply channel not drained, dropping response")
			}
		case <-c.stopCh:
			return
		}
	}
}

// Submit enqueues a query and returns a channel that receives exactly one
// Response, satisfying spec.md §8's "for every QUERY received: exactly one
// QUERY_RESPONSE is emitted with matching request_id." If the queue is
// full, CONNECTION_CLOSED is returned immediately rather than blocking the
// connection's read loop.
func (c *Connection) Submit(ctx context.Context, req Request) <-chan Response {
	reply := make(chan Response, 1)
	select {
	case c.queue <- job{ctx: ctx, req: req, replyTo: reply}:
	default:
		reply <- Response{RequestID: req.RequestID, Error: "CONNECTION_CLOSED: request queue full"}
	}
	return reply
}

// Close stops the per-connection worker. Queued-but-unprocessed jobs are
// dropped; spec.md's ordering guarantee only covers requests that were
// accepted before close.
func (c *Connection) Close() {
	close(c.stopCh)
}
