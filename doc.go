// Copyright (c) 2011 by István Váradi
//
// This file is part of liblwt, a Lightweight (Cooperative) Threading library
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program; if not, write to the Free Software
// Foundation, Inc., 59 Temple Place, Suite 330, Boston, MA  02111-1307  USA

// Package lwt implements a lightweight cooperative threading runtime on a
// single OS thread. It multiplexes many user-level "fibers" over one
// goroutine acting as the scheduler's host thread, giving each fiber a
// private stack accounting entry and a blocking-style programming model
// layered on non-blocking I/O.
//
// # Architecture
//
// A [Scheduler] owns a stack pool, an event multiplexer, a timer heap and
// a blocking-I/O worker pool. Fibers are spawned with [Scheduler.Spawn]
// and run to completion cooperatively: a fiber only ever yields at one of
// a closed set of suspension points (blocking I/O, [BlockingRef.BlockCurrent],
// [Scheduler.Sleep], [Fiber.Join], worker-pool submission). Outside those
// points a fiber has sole, uninterrupted access to any state it touches;
// the runtime never preempts.
//
// # Context switching and the garbage collector
//
// A fiber's body runs on a real goroutine, parked on a channel receive
// at every suspension point and resumed by a single handoff channel in
// [Scheduler.dispatchNext] — never by a raw register/stack switch. The
// Go runtime's stack-copying garbage collector tracks live pointers by
// walking each goroutine's own managed stack; a hand-written context
// switch (setjmp/longjmp-style, swapping SP directly) would leave that
// bookkeeping pointed at the wrong bounds unless written in
// hand-verified, nosplit assembly, and would still forgo preemption,
// signal safety and race-detector support the Go scheduler gives
// goroutines for free. The [stackPool] therefore does not back a raw
// execution stack at all; it hands out a guard-paged mmap region purely
// to preserve the original design's fixed per-fiber memory budget and
// stack-overflow guard page, accounted separately from the goroutine
// stack Go itself grows on demand. See DESIGN.md for the fuller writeup
// of this narrowing.
//
// # Thread safety
//
// All of the core types (fibers, blocking references, the ready queue,
// the timer heap, the event multiplexer) are single-threaded by design
// and must only be touched from the scheduler's host goroutine. The
// blocking-I/O worker pool is the sole place additional OS threads exist;
// they never touch scheduler state directly, communicating exclusively
// through pipe file descriptors that are themselves ordinary polled
// descriptors.
//
// # Example
//
//	sched, err := lwt.NewScheduler()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sched.Close()
//	sched.Spawn(func(f *lwt.Fiber) {
//		sched.Sleep(50 * time.Millisecond)
//		fmt.Println("done")
//	}, lwt.Joinable)
//	sched.Run()
package lwt
