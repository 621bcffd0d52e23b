/*
 * miniker - Programmable interval timer.
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

// Package timer implements the PIT: a fixed-rate periodic interrupt source
// that drives the scheduler's preemption tick.
package timer

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Period is the PIT's fixed tick interval, ~33 Hz, matching the divisor
// programmed by the original pit_init.
const Period = 30300 * time.Microsecond

// PIT is a periodic interrupt source. Ticks are delivered on Ticks() only
// while the timer is running; the PIT does not consult the interrupt
// controller's mask itself.
type PIT struct {
	wg        sync.WaitGroup
	running   bool
	period    time.Duration
	ticks     chan struct{}
	enable    chan bool
	setPeriod chan time.Duration
	done      chan struct{}
	ticker    *time.Ticker
}

// NewPIT creates a PIT and starts its delivery goroutine immediately; the
// timer does not fire until Start is called.
func NewPIT() *PIT {
	pit := &PIT{
		period:    Period,
		ticks:     make(chan struct{}),
		enable:    make(chan bool, 1),
		setPeriod: make(chan time.Duration),
		done:      make(chan struct{}),
	}
	pit.wg.Add(1)
	go pit.run()
	return pit
}

// SetPeriod reprograms the PIT's tick interval, the way a boot-time
// configuration can request a faster or slower preemption rate than the
// hardware default. It blocks until the running goroutine picks up the
// change.
func (pit *PIT) SetPeriod(d time.Duration) error {
	if d <= 0 {
		return errors.New("timer: period must be positive")
	}
	select {
	case pit.setPeriod <- d:
		return nil
	case <-pit.done:
		return errors.New("timer: PIT is shut down")
	}
}

// Ticks returns the channel the scheduler reads to learn of each PIT tick.
func (pit *PIT) Ticks() <-chan struct{} {
	return pit.ticks
}

// Start enables tick delivery.
func (pit *PIT) Start() {
	pit.enable <- true
}

// Stop disables tick delivery without tearing down the goroutine.
func (pit *PIT) Stop() {
	pit.enable <- false
}

// Shutdown stops the PIT's goroutine permanently.
func (pit *PIT) Shutdown() {
	close(pit.done)
	done := make(chan struct{})
	go func() {
		pit.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(time.Second):
		slog.Warn("timed out waiting for PIT to finish")
		return
	}
}

func (pit *PIT) run() {
	defer pit.wg.Done()
	pit.ticker = time.NewTicker(pit.period)
	defer pit.ticker.Stop()
	pit.running = false

	for {
		select {
		case <-pit.ticker.C:
			if pit.running {
				select {
				case pit.ticks <- struct{}{}:
				case <-pit.done:
					return
				}
			}
		case pit.running = <-pit.enable:
			if pit.running {
				pit.ticker.Reset(pit.period)
			}
		case pit.period = <-pit.setPeriod:
			pit.ticker.Reset(pit.period)
		case <-pit.done:
			return
		}
	}
}
