// Package clock provides the scheduler every simulated wait goes through.
//
// Simulated devices never block on real hardware. Their response delays,
// the periodic random-fault check and the reconnection backoff are all
// expressed as waits on a Scheduler, so the same code runs against the wall
// clock in the simulator daemon and against virtual time in tests:
//
//	sched := clock.NewFake()
//	go printer.Print(ctx, job)
//	sched.BlockUntil(1)
//	sched.Advance(500 * time.Millisecond)
//
// # Tasks
//
// AfterFunc and Every return a Task. Stopping a task guarantees that no
// further run is started once Stop returns; a run already in progress is not
// interrupted.
package clock
