/*
 * miniker - Round-robin preemptive scheduler.
 *
 * Copyright (c) 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a
 * copy of this software and associated documentation files (the "Software"),
 * to deal in the Software without restriction, including without limitation
 * the rights to use, copy, modify, merge, publish, distribute, sublicense,
 * and/or sell copies of the Software, and to permit persons to whom the
 * Software is furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.  IN NO EVENT SHALL
 * RICHARD CORNWELL BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
 * IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
 * CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 *
 */

// Package sched implements the round-robin scheduler: on every timer tick
// it searches circularly from the current process for the next runnable
// leaf process, makes it current, and signals its resume channel. Process
// goroutines run without waiting for that signal unless they call Yield.
package sched

import (
	"log/slog"
	"sync"

	"github.com/aharrow/miniker/process"
)

// Ticker is satisfied by timer.PIT; the scheduler only needs a tick
// source, not the concrete timer type.
type Ticker interface {
	Ticks() <-chan struct{}
}

// Scheduler owns the current-process id and drives process handoff from
// PIT ticks.
type Scheduler struct {
	mu      sync.Mutex
	table   *process.Table
	current process.ID

	stop chan struct{}
	wg   sync.WaitGroup
}

// New returns a scheduler over table with no current process selected.
func New(table *process.Table) *Scheduler {
	return &Scheduler{table: table}
}

// Current returns the currently scheduled process id (0 if none yet).
func (s *Scheduler) Current() process.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SetCurrent forces the current process id, used by Boot to seed the
// initial shell before the first tick arrives.
func (s *Scheduler) SetCurrent(id process.ID) {
	s.mu.Lock()
	s.current = id
	s.mu.Unlock()
}

// Run drives Tick from every tick delivered by src until Stop is called.
func (s *Scheduler) Run(src Ticker) {
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-src.Ticks():
				s.Tick()
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts the goroutine started by Run.
func (s *Scheduler) Stop() {
	if s.stop != nil {
		close(s.stop)
		s.wg.Wait()
	}
}

// Tick performs one scheduling decision: starting from (current+1) mod 8,
// find the next id whose live bit is set, that isn't 0, and whose PCB
// doesn't have a child, make it current, and post a resume token to it
// without blocking. A no-op if none found.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()

	running := s.table.RunningSet()

	for step := 1; step <= 8; step++ {
		candidate := process.ID((int(current) + step) % 8)
		if candidate == 0 || !running.Set(candidate) {
			continue
		}
		pcb := s.table.Get(candidate)
		if pcb == nil || pcb.HasChild {
			continue
		}

		s.mu.Lock()
		s.current = candidate
		s.mu.Unlock()

		slog.Debug("scheduler switching process", "from", current, "to", candidate)
		select {
		case pcb.Resume <- struct{}{}:
		default:
			// already has a pending resume token; nothing further to do.
		}
		return
	}
}

// Yield is called by a process's goroutine to voluntarily give up the CPU
// at a point equivalent to a timer interrupt finding it still in user
// mode; it blocks until the scheduler resumes it again.
func (s *Scheduler) Yield(pcb *process.PCB) {
	<-pcb.Resume
}
