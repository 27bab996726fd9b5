package idgen

import (
	"sort"
	"strings"
	"testing"
)

func TestUUIDv7_Format(t *testing.T) {
	id := UUIDv7()()
	if len(id) != 36 || len(strings.Split(id, "-")) != 5 {
		t.Fatalf("UUIDv7: bad format %q", id)
	}
	if id[14] != '7' {
		t.Fatalf("UUIDv7: version nibble = %c, want 7", id[14])
	}
}

func TestUUIDv7_SortsByCreation(t *testing.T) {
	gen := UUIDv7()
	ids := make([]string, 50)
	for i := range ids {
		ids[i] = gen()
	}
	if !sort.StringsAreSorted(ids) {
		t.Fatal("UUIDv7: IDs are not time-sorted")
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("UUIDv7: duplicate %q", id)
		}
		seen[id] = true
	}
}

func TestPrefixed(t *testing.T) {
	id := Prefixed("msg_", Sequence(""))()
	if id != "msg_1" {
		t.Fatalf("Prefixed: got %q", id)
	}
}

func TestSequence(t *testing.T) {
	gen := Sequence("c")
	if a, b := gen(), gen(); a != "c1" || b != "c2" {
		t.Fatalf("Sequence: got %q, %q", a, b)
	}
}

func TestParse(t *testing.T) {
	id := New()
	got, err := Parse(strings.ToUpper(id))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != id {
		t.Fatalf("Parse: got %q, want canonical %q", got, id)
	}
	if _, err := Parse("not-a-uuid"); err == nil {
		t.Fatal("Parse: expected error")
	}
}
