package lwt

import (
	"testing"
)

func TestStackPoolAcquireReleaseRoundTrip(t *testing.T) {
	p := newStackPool(64*1024, 4)

	top, err := p.acquireStack()
	if err != nil {
		t.Fatalf("acquireStack: %v", err)
	}
	if top == 0 {
		t.Fatal("acquireStack returned a zero address")
	}

	_, inUse, allocated := p.stats()
	if inUse != 1 {
		t.Fatalf("inUse = %d, want 1", inUse)
	}
	if allocated != 4 {
		t.Fatalf("allocated = %d, want 4 (one pool of stacksPerPool)", allocated)
	}

	p.releaseStack(top)
	free, inUse, _ := p.stats()
	if inUse != 0 {
		t.Fatalf("inUse = %d, want 0 after release", inUse)
	}
	if free != 4 {
		t.Fatalf("free = %d, want 4 after release", free)
	}
}

func TestStackPoolGrowsWhenExhausted(t *testing.T) {
	p := newStackPool(64*1024, 2)

	tops := make([]uintptr, 0, 5)
	for i := 0; i < 5; i++ {
		top, err := p.acquireStack()
		if err != nil {
			t.Fatalf("acquireStack #%d: %v", i, err)
		}
		tops = append(tops, top)
	}

	_, inUse, allocated := p.stats()
	if inUse != 5 {
		t.Fatalf("inUse = %d, want 5", inUse)
	}
	if allocated != 6 {
		t.Fatalf("allocated = %d, want 6 (three pools of 2)", allocated)
	}

	for _, top := range tops {
		p.releaseStack(top)
	}
	free, inUse, _ := p.stats()
	if inUse != 0 || free != 6 {
		t.Fatalf("after releasing all: inUse=%d free=%d, want 0 and 6", inUse, free)
	}
}

func TestStackPoolDistinctStacksDoNotOverlap(t *testing.T) {
	p := newStackPool(64*1024, 4)

	a, err := p.acquireStack()
	if err != nil {
		t.Fatalf("acquireStack a: %v", err)
	}
	b, err := p.acquireStack()
	if err != nil {
		t.Fatalf("acquireStack b: %v", err)
	}
	if a == b {
		t.Fatal("acquireStack handed out the same address twice")
	}

	diff := a - b
	if a < b {
		diff = b - a
	}
	if diff < uintptr(p.stackSize) {
		t.Fatalf("stacks overlap: a=%#x b=%#x stackSize=%d", a, b, p.stackSize)
	}
}

func TestRoundUpToPage(t *testing.T) {
	if got := roundUpToPage(1); got != pageSize {
		t.Fatalf("roundUpToPage(1) = %d, want %d", got, pageSize)
	}
	if got := roundUpToPage(pageSize); got != pageSize {
		t.Fatalf("roundUpToPage(pageSize) = %d, want %d", got, pageSize)
	}
	if got := roundUpToPage(pageSize + 1); got != 2*pageSize {
		t.Fatalf("roundUpToPage(pageSize+1) = %d, want %d", got, 2*pageSize)
	}
	if got := roundUpToPage(0); got != pageSize {
		t.Fatalf("roundUpToPage(0) = %d, want %d", got, pageSize)
	}
}
