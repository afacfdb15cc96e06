package lwt

import (
	"testing"
	"time"
)

func TestPipeWriteThenReadAcrossFibers(t *testing.T) {
	sched := newTestScheduler(t)

	r, w, err := NewPipe(sched)
	if err != nil {
		t.Fatalf("NewPipe: %v", err)
	}

	got := make(chan string, 1)
	_, err = sched.Spawn(func(f *Fiber) {
		buf := make([]byte, 5)
		n, err := r.Read(buf)
		if err != nil {
			t.Errorf("Read: %v", err)
			return
		}
		got <- string(buf[:n])
	}, Joinable)
	if err != nil {
		t.Fatalf("Spawn reader: %v", err)
	}

	_, err = sched.Spawn(func(f *Fiber) {
		if err := w.WriteAll([]byte("hello")); err != nil {
			t.Errorf("WriteAll: %v", err)
		}
	}, Detached)
	if err != nil {
		t.Fatalf("Spawn writer: %v", err)
	}

	sched.Run()

	select {
	case s := <-got:
		if s != "hello" {
			t.Fatalf("got %q, want %q", s, "hello")
		}
	default:
		t.Fatal("reader fiber never delivered its result")
	}
}

func TestPipeReadBlocksUntilDataArrives(t *testing.T) {
	sched := newTestScheduler(t)

	r, w, err := NewPipe(sched)
	if err != nil {
		t.Fatalf("NewPipe: %v", err)
	}

	order := make(chan string, 2)
	_, err = sched.Spawn(func(f *Fiber) {
		buf := make([]byte, 1)
		if _, err := r.Read(buf); err != nil {
			t.Errorf("Read: %v", err)
			return
		}
		order <- "read"
	}, Joinable)
	if err != nil {
		t.Fatalf("Spawn reader: %v", err)
	}

	_, err = sched.Spawn(func(f *Fiber) {
		sched.Sleep(5 * time.Millisecond)
		order <- "slept"
		_, _ = w.Write([]byte("x"))
	}, Detached)
	if err != nil {
		t.Fatalf("Spawn writer: %v", err)
	}

	sched.Run()

	first := <-order
	second := <-order
	if first != "slept" || second != "read" {
		t.Fatalf("expected the sleeping fiber to finish first, got %q then %q", first, second)
	}
}

func TestPipeCloseUnblocksPendingRead(t *testing.T) {
	sched := newTestScheduler(t)

	r, w, err := NewPipe(sched)
	if err != nil {
		t.Fatalf("NewPipe: %v", err)
	}

	done := make(chan error, 1)
	_, err = sched.Spawn(func(f *Fiber) {
		buf := make([]byte, 1)
		_, err := r.Read(buf)
		done <- err
	}, Joinable)
	if err != nil {
		t.Fatalf("Spawn reader: %v", err)
	}

	_, err = sched.Spawn(func(f *Fiber) {
		sched.Sleep(5 * time.Millisecond)
		_ = r.Close()
	}, Detached)
	if err != nil {
		t.Fatalf("Spawn closer: %v", err)
	}

	sched.Run()
	_ = w.Close()

	select {
	case err := <-done:
		if _, ok := err.(*CancelledError); !ok {
			t.Fatalf("got %v, want *CancelledError", err)
		}
	default:
		t.Fatal("reader fiber never returned")
	}
}
