package handle

import (
	"math"
	"testing"
)

type image struct{ name string }

func TestNoneIsInvalid(t *testing.T) {
	h := None[image]()
	if h.IsValid() {
		t.Fatal("None() must not be valid")
	}
	if h.Index() != math.MaxUint32 || h.Gen() != math.MaxUint32 {
		t.Errorf("None() = (%d, %d), want (MaxUint32, MaxUint32)", h.Index(), h.Gen())
	}
	if h != None[image]() {
		t.Error("sentinels must compare equal")
	}
}

func TestZeroValueIsInvalid(t *testing.T) {
	var h Handle[image]
	if h.IsValid() {
		t.Fatal("the zero handle must not be valid")
	}
	p := NewPool[image](2)
	first := p.Add(image{name: "first"})
	if !first.IsValid() || first == h {
		t.Fatalf("first handle %v must be valid and differ from the zero value", first)
	}
	if _, ok := p.Get(h); ok {
		t.Error("the zero handle resolved to slot 0")
	}
	if _, ok := p.Remove(h); ok {
		t.Error("the zero handle removed slot 0")
	}
	if !p.Contains(first) {
		t.Error("slot 0 was lost")
	}
}

func TestHash(t *testing.T) {
	h := New[image](3, 7)
	if got, want := h.Hash(), uint64(3)<<32|7; got != want {
		t.Errorf("Hash() = %#x, want %#x", got, want)
	}
}

func TestStaleHandleNeverEqualsReusedSlot(t *testing.T) {
	p := NewPool[image](4)
	h1 := p.Add(image{name: "first"})

	if _, ok := p.Remove(h1); !ok {
		t.Fatal("Remove(h1) failed")
	}
	h2 := p.Add(image{name: "second"})

	if h1.Index() != h2.Index() {
		t.Fatalf("slot not reused: %v vs %v", h1, h2)
	}
	if h1 == h2 {
		t.Fatalf("stale handle %v equals reused handle %v", h1, h2)
	}
	if _, ok := p.Get(h1); ok {
		t.Error("Get(stale) succeeded")
	}
	v, ok := p.Get(h2)
	if !ok || v.name != "second" {
		t.Errorf("Get(h2) = %v, %v", v, ok)
	}
}

func TestGetOutOfRange(t *testing.T) {
	p := NewPool[image](0)
	if _, ok := p.Get(New[image](10, 0)); ok {
		t.Error("out of range handle resolved")
	}
	if _, ok := p.Get(None[image]()); ok {
		t.Error("sentinel resolved")
	}
}

func TestRemoveTwice(t *testing.T) {
	p := NewPool[image](1)
	h := p.Add(image{})
	if _, ok := p.Remove(h); !ok {
		t.Fatal("first Remove failed")
	}
	if _, ok := p.Remove(h); ok {
		t.Error("second Remove of the same handle succeeded")
	}
	if p.Len() != 0 {
		t.Errorf("Len() = %d, want 0", p.Len())
	}
}

func TestEachAndClear(t *testing.T) {
	p := NewPool[image](3)
	handles := []Handle[image]{p.Add(image{"a"}), p.Add(image{"b"}), p.Add(image{"c"})}
	p.Remove(handles[1])

	var seen []string
	p.Each(func(_ Handle[image], v *image) {
		seen = append(seen, v.name)
	})
	if len(seen) != 2 || seen[0] != "a" || seen[1] != "c" {
		t.Errorf("Each visited %v, want [a c]", seen)
	}

	p.Clear()
	if p.Len() != 0 {
		t.Errorf("Len() after Clear = %d", p.Len())
	}
	for _, h := range handles {
		if p.Contains(h) {
			t.Errorf("%v still alive after Clear", h)
		}
	}
}

func TestExhaustedSlotIsRetired(t *testing.T) {
	p := NewPool[image](1)
	h := p.Add(image{})
	p.slots[h.Index()].gen = Invalid - 1
	h = New[image](h.Index(), Invalid-1)

	p.Remove(h)
	next := p.Add(image{})
	if next.Index() == h.Index() {
		t.Errorf("slot with exhausted generation was reused: %v", next)
	}
}
