package oscdispatch

import "testing"

func TestIDSpaceAllocIsMonotonicUntilFreed(t *testing.T) {
	s := newIDSpace(10)
	a := s.alloc()
	b := s.alloc()
	if a != 10 || b != 11 {
		t.Fatalf("expected 10, 11; got %d, %d", a, b)
	}
	s.free_(a)
	c := s.alloc()
	if c != a {
		t.Fatalf("expected freed id %d to be reused, got %d", a, c)
	}
	d := s.alloc()
	if d != 12 {
		t.Fatalf("expected next fresh id 12, got %d", d)
	}
}

func TestIDSpaceBindLookupUnbind(t *testing.T) {
	s := newIDSpace(0)
	id := s.alloc()
	s.bind("kick", id)

	got, ok := s.lookup("kick")
	if !ok || got != id {
		t.Fatalf("expected lookup to find bound id %d, got %d ok=%v", id, got, ok)
	}

	unbound, ok := s.unbind("kick")
	if !ok || unbound != id {
		t.Fatalf("expected unbind to return %d, got %d ok=%v", id, unbound, ok)
	}
	if _, ok := s.lookup("kick"); ok {
		t.Fatal("expected lookup after unbind to fail")
	}
}
