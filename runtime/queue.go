package runtime

import (
	"sync"

	"chat-sync/domain/event"
)

// queue is an unbounded FIFO between the evaluator's synchronous delivery
// and a feed consumer. A slow consumer accumulates undelivered events here;
// backpressure is the transport's concern, not the engine's.
type queue struct {
	mu        sync.Mutex
	buf       []event.FeedEvent
	notify    chan struct{}
	out       chan event.FeedEvent
	done      chan struct{}
	finishing bool
	closed    bool
}

func newQueue() *queue {
	q := &queue{
		notify: make(chan struct{}, 1),
		out:    make(chan event.FeedEvent),
		done:   make(chan struct{}),
	}
	go q.pump()
	return q
}

// Push appends one event. Events pushed after Finish or Close are dropped.
func (q *queue) Push(e event.FeedEvent) {
	q.mu.Lock()
	if q.finishing || q.closed {
		q.mu.Unlock()
		return
	}
	q.buf = append(q.buf, e)
	q.mu.Unlock()
	q.signal()
}

// Finish stops accepting events, drains what is buffered, then closes the
// output. Used for terminal failure delivery and empty-complete streams.
func (q *queue) Finish() {
	q.mu.Lock()
	q.finishing = true
	q.mu.Unlock()
	q.signal()
}

// Close stops delivery immediately, discarding anything still buffered.
func (q *queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.done)
	q.signal()
}

func (q *queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *queue) pump() {
	defer close(q.out)
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return
		}
		if len(q.buf) == 0 {
			finished := q.finishing
			q.mu.Unlock()
			if finished {
				return
			}
			select {
			case <-q.notify:
			case <-q.done:
			}
			continue
		}
		batch := q.buf
		q.buf = nil
		q.mu.Unlock()

		for _, e := range batch {
			select {
			case q.out <- e:
			case <-q.done:
				return
			}
		}
	}
}
