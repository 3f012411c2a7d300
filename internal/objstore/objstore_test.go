package objstore

import (
	"errors"
	"testing"

	"deedles.dev/wlkbd/wire"
)

func TestStore(t *testing.T) {
	s := New[string](2)
	s.Register(1, "display")

	registry := s.Allocate("registry")
	seat := s.Allocate("seat")
	if (registry != 2) || (seat != 3) {
		t.Fatalf("allocated %v and %v, want 2 and 3", registry, seat)
	}

	if v, err := s.Lookup(seat); (err != nil) || (v != "seat") {
		t.Fatalf("lookup seat: %q, %v", v, err)
	}

	if _, ok := s.Release(seat); !ok {
		t.Fatal("release seat: not found")
	}
	_, err := s.Lookup(seat)
	var uerr wire.UnknownObjectError
	if !errors.As(err, &uerr) || (uerr.ID != seat) {
		t.Fatalf("lookup released seat: got %v", err)
	}

	if id := s.Allocate("keyboard"); id != 4 {
		t.Errorf("IDs must not be reused: got %v, want 4", id)
	}
	if s.Len() != 3 {
		t.Errorf("len: got %v, want 3", s.Len())
	}
}
