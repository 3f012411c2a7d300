// Package objstore tracks the objects that exist on one connection.
package objstore

import "deedles.dev/wlkbd/wire"

// Store maps object IDs to entries of type T. IDs handed out by
// Allocate increase monotonically and are never reused, even after
// being released, so a late message for a released object can't be
// mistaken for one aimed at a newer object.
type Store[T any] struct {
	objects map[uint32]T
	nextID  uint32
}

// New returns a Store that allocates IDs starting at start.
func New[T any](start uint32) *Store[T] {
	return &Store[T]{
		objects: make(map[uint32]T),
		nextID:  start,
	}
}

// Allocate assigns the next free ID to v.
func (s *Store[T]) Allocate(v T) uint32 {
	id := s.nextID
	s.nextID++

	s.objects[id] = v
	return id
}

// Register records v under an ID that was chosen elsewhere, such as
// the display's fixed ID.
func (s *Store[T]) Register(id uint32, v T) {
	s.objects[id] = v
	if id >= s.nextID {
		s.nextID = id + 1
	}
}

// Lookup returns the entry for id. Unknown IDs are an error rather
// than a zero value because a message can't be decoded without
// knowing what its target is.
func (s *Store[T]) Lookup(id uint32) (v T, err error) {
	v, ok := s.objects[id]
	if !ok {
		return v, wire.UnknownObjectError{ID: id}
	}
	return v, nil
}

// Release forgets id, returning the entry that was stored there.
func (s *Store[T]) Release(id uint32) (v T, ok bool) {
	v, ok = s.objects[id]
	delete(s.objects, id)
	return v, ok
}

// Len returns the number of live objects.
func (s *Store[T]) Len() int {
	return len(s.objects)
}
