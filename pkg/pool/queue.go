package pool

import "time"

// acquireResult is what a queued caller eventually receives.
type acquireResult struct {
	conn *Conn
	err  error
}

// waiter is a pending acquisition: the requested URL, a buffered result
// channel, and the enqueue time. The deadline lives with the waiting
// caller, not the record; drain never touches timers.
type waiter struct {
	baseURL  string
	ch       chan acquireResult
	enqueued time.Time
}

// drainLocked satisfies queued requests after a release, repurposing, or
// reap. It scans in arrival order and services the first satisfiable
// request: one with an idle connection for its URL, or any while spare
// capacity exists. The scan restarts until no remaining request is
// satisfiable. Strict FIFO would head-of-line-block a request for URL A
// behind an unsatisfiable request for URL B; arrival order is still
// preserved among requests for the same URL.
func (p *Pool) drainLocked() {
	for {
		served := false

		for i, w := range p.queue {
			var conn *Conn

			if c := p.idleForURLLocked(w.baseURL); c != nil {
				c.active = true
				c.lastUsed = time.Now()
				conn = c
			} else if len(p.conns) < p.cfg.MaxConnections {
				conn = newConn(w.baseURL, time.Now())
				p.conns[conn.ID] = conn
			} else {
				continue
			}

			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			w.ch <- acquireResult{conn: conn}
			served = true
			break
		}

		if !served {
			return
		}
	}
}

// abandonWaiter removes w from the queue after a timeout or
// cancellation. If w was already satisfied the result is returned with
// satisfied=true; the send happened under the pool lock before removal,
// so the buffered channel is guaranteed to hold it.
func (p *Pool) abandonWaiter(w *waiter) (acquireResult, bool) {
	p.mu.Lock()
	for i, queued := range p.queue {
		if queued == w {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			p.mu.Unlock()
			return acquireResult{}, false
		}
	}
	p.mu.Unlock()

	return <-w.ch, true
}
