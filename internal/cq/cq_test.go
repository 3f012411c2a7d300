package cq

import (
	"reflect"
	"testing"
	"time"
)

func TestQueue(t *testing.T) {
	q := New[int]()
	defer q.Stop()

	for i := 0; i < 5; i++ {
		q.Push(i)
	}

	var got []int
	for len(got) < 5 {
		select {
		case batch := <-q.Get():
			if len(batch) == 0 {
				t.Fatal("empty batch")
			}
			got = append(got, batch...)
		case <-time.After(time.Second):
			t.Fatalf("timed out with %v", got)
		}
	}

	if want := []int{0, 1, 2, 3, 4}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestQueueStop(t *testing.T) {
	q := New[string]()
	q.Push("a")
	q.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Push("b")
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("push blocked after stop")
	}

	select {
	case <-q.Done():
	default:
		t.Error("done not closed")
	}
}
