// Package relay carries events raised on arbitrary goroutines onto the
// single goroutine that owns all widget state. Loop is that goroutine;
// Relay is the typed set of channels the widget listens on.
package relay

import (
	"errors"
	"sync"
)

// ErrClosed reports work posted to a loop that has shut down.
var ErrClosed = errors.New("relay: loop closed")

// Loop is a serial executor: every function posted to it runs on one
// dedicated goroutine, in the order it was posted. Posting never blocks
// the caller; the queue is unbounded.
type Loop struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

// NewLoop starts a loop and its goroutine.
func NewLoop() *Loop {
	l := &Loop{done: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

// Post enqueues fn for execution on the loop goroutine. It returns
// ErrClosed after Close; the function is then dropped.
func (l *Loop) Post(fn func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.queue = append(l.queue, fn)
	l.cond.Signal()
	return nil
}

// Call runs fn on the loop goroutine and waits for it to finish. Calling
// it from the loop goroutine itself would deadlock; use Post there.
func (l *Loop) Call(fn func()) error {
	ran := make(chan struct{})
	if err := l.Post(func() {
		defer close(ran)
		fn()
	}); err != nil {
		return err
	}
	<-ran
	return nil
}

// Close stops the loop after draining work already queued. It blocks until
// the loop goroutine exits and is safe to call more than once.
func (l *Loop) Close() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		l.cond.Signal()
	}
	l.mu.Unlock()
	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()
	}
}
