package lwt

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// pageSize is resolved once at package init via the host's real page
// size rather than assumed to be 4096, since the stack pool's guard-page
// arithmetic must match what mprotect actually enforces.
var pageSize = unix.Getpagesize()

// stackPool produces and recycles fixed-size, guard-paged stack regions.
// Stacks in a pool are carved lazily out of a single large mmap mapping;
// free stacks are threaded onto a singly-linked list whose link pointer
// lives in the topmost machine word of the stack, exactly as the
// original design lays it out.
type stackPool struct {
	mu            sync.Mutex
	stackSize     int // rounded up to pageSize
	stacksPerPool int
	pools         []uintptr // base address of each mmap mapping
	freeTop       uintptr   // top-of-stack address of the first free stack, 0 if none
	allocated     int       // total stacks ever carved out (any pool)
	inUse         int
}

func roundUpToPage(n int) int {
	if n <= 0 {
		n = pageSize
	}
	return ((n + pageSize - 1) / pageSize) * pageSize
}

func newStackPool(stackSize, stacksPerPool int) *stackPool {
	if stacksPerPool <= 0 {
		stacksPerPool = defaultStacksPerPool
	}
	return &stackPool{
		stackSize:     roundUpToPage(stackSize),
		stacksPerPool: stacksPerPool,
	}
}

// acquireStack returns the top-of-stack address of a region of
// p.stackSize bytes, flanked below by an unreadable guard page.
func (p *stackPool) acquireStack() (uintptr, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.freeTop == 0 {
		if err := p.allocatePoolLocked(); err != nil {
			return 0, err
		}
	}

	top := p.freeTop
	link := *(*uintptr)(unsafe.Pointer(top - uintptr(unsafe.Sizeof(uintptr(0)))))
	p.freeTop = link
	p.inUse++
	return top, nil
}

// releaseStack returns a stack previously handed out by acquireStack to
// the free list.
func (p *stackPool) releaseStack(top uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()

	*(*uintptr)(unsafe.Pointer(top - uintptr(unsafe.Sizeof(uintptr(0))))) = p.freeTop
	p.freeTop = top
	p.inUse--
}

// allocatePoolLocked grows the pool by one mmap mapping of
// stacksPerPool stacks, each flanked by a guard page, and threads the
// new stacks onto the free list. Callers hold p.mu.
func (p *stackPool) allocatePoolLocked() error {
	guarded := p.stackSize + pageSize // one guard page per stack, below it
	mappingSize := guarded * p.stacksPerPool

	data, err := unix.Mmap(-1, 0, mappingSize,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return &ResourceExhaustedError{Resource: "stack pool", Cause: err}
	}
	base := uintptr(unsafe.Pointer(&data[0]))

	for i := 0; i < p.stacksPerPool; i++ {
		regionBase := base + uintptr(i*guarded)
		// Guard page at the very bottom of the region; the stack itself
		// occupies the remainder, growing down toward (but never into)
		// the guard page.
		guardSlice := unsafe.Slice((*byte)(unsafe.Pointer(regionBase)), pageSize)
		if err := unix.Mprotect(guardSlice, unix.PROT_NONE); err != nil {
			_ = unix.Munmap(data)
			return &ResourceExhaustedError{Resource: "stack pool guard page", Cause: err}
		}
		top := regionBase + uintptr(guarded)
		*(*uintptr)(unsafe.Pointer(top - uintptr(unsafe.Sizeof(uintptr(0))))) = p.freeTop
		p.freeTop = top
	}

	p.pools = append(p.pools, base)
	p.allocated += p.stacksPerPool
	return nil
}

// stats returns (freeListLength, inUse, allocated) for invariant checks.
func (p *stackPool) stats() (free, inUse, allocated int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for top := p.freeTop; top != 0; {
		free++
		top = *(*uintptr)(unsafe.Pointer(top - uintptr(unsafe.Sizeof(uintptr(0)))))
	}
	return free, p.inUse, p.allocated
}
