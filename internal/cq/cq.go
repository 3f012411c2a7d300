// Package cq implements a simple concurrent queue.
package cq

import "sync"

// Queue is an unbounded queue between one or more producers and a
// consumer. Producers never wait for the consumer: values pile up until
// the consumer takes all of them at once.
type Queue[T any] struct {
	done  chan struct{}
	close sync.Once

	add chan T
	get chan []T
}

func New[T any]() *Queue[T] {
	q := Queue[T]{
		done: make(chan struct{}),
		add:  make(chan T),
		get:  make(chan []T),
	}
	go q.run()

	return &q
}

// Stop stops the queue. Values that have not been taken are dropped
// and later pushes are ignored.
func (q *Queue[T]) Stop() {
	q.close.Do(func() {
		close(q.done)
	})
}

// Done is closed once the queue has been stopped.
func (q *Queue[T]) Done() <-chan struct{} {
	return q.done
}

// Push adds v to the queue. It only blocks for as long as it takes the
// queue's goroutine to accept the value.
func (q *Queue[T]) Push(v T) {
	select {
	case <-q.done:
	case q.add <- v:
	}
}

// Get yields every value that has been pushed since the previous
// receive, oldest first. It never yields an empty slice.
func (q *Queue[T]) Get() <-chan []T {
	return q.get
}

func (q *Queue[T]) run() {
	var s []T
	var get chan []T

	for {
		select {
		case <-q.done:
			return

		case v := <-q.add:
			s = append(s, v)
			get = q.get

		case get <- s:
			s = nil
			get = nil
		}
	}
}
