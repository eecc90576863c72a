package directory

import (
	"context"
	"testing"
)

func TestMemoryDirectoryLookup(t *testing.T) {
	d := NewMemoryDirectory()
	d.Put(User{ID: "u1", Username: "alice"})
	d.Put(User{ID: "u2", Username: "bob"})

	got, err := d.Lookup(context.Background(), []string{"u1", "ghost"})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("resolved = %d, want 1 (unknown ids absent, not error)", len(got))
	}
	if got["u1"].Username != "alice" {
		t.Fatalf("u1 = %+v", got["u1"])
	}
}

func TestMemoryDirectorySetOnline(t *testing.T) {
	d := NewMemoryDirectory()
	d.Put(User{ID: "u1", Username: "alice"})

	d.SetOnline("u1", true)
	d.SetOnline("ghost", true) // noop

	got, err := d.Lookup(context.Background(), []string{"u1"})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !got["u1"].Online {
		t.Fatal("u1 not marked online")
	}
}
