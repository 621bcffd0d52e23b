/*
 * miniker - Real-time clock.
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

// Package rtc implements the real-time clock: a settable-rate periodic
// interrupt source whose only job is to drive the console's video mirror.
package rtc

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrBadFrequency is returned by SetFrequency for any rate outside the
// hardware-supported power-of-two set.
var ErrBadFrequency = errors.New("rtc: unsupported frequency")

// DefaultFrequency is the rate the RTC is programmed to at rtc_init time.
const DefaultFrequency = 32

// validRates mirrors rtc_write's accepted rate-select values. 8192, 4096,
// and 2048 are explicitly rejected on the real hardware beyond 1024 Hz;
// 0 ("no periodic interrupt") is excluded here because nothing in this
// kernel ever requests it and the accepted frequency set starts at 2.
var validRates = map[int]bool{
	2: true, 4: true, 8: true, 16: true, 32: true, 64: true,
	128: true, 256: true, 512: true, 1024: true,
}

// Clock is a periodic interrupt source with a runtime-settable frequency.
type Clock struct {
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	freqHz  int
	ticks   chan struct{}
	enable  chan bool
	reset   chan time.Duration
	done    chan struct{}
}

// NewClock creates a Clock at DefaultFrequency and starts its delivery
// goroutine; ticks are not delivered until Start is called.
func NewClock() *Clock {
	c := &Clock{
		freqHz: DefaultFrequency,
		ticks:  make(chan struct{}),
		enable: make(chan bool, 1),
		reset:  make(chan time.Duration, 1),
		done:   make(chan struct{}),
	}
	c.wg.Add(1)
	go c.run(periodFor(DefaultFrequency))
	return c
}

func periodFor(hz int) time.Duration {
	return time.Second / time.Duration(hz)
}

// Ticks returns the channel fired once per RTC period while running.
func (c *Clock) Ticks() <-chan struct{} {
	return c.ticks
}

// Start enables tick delivery.
func (c *Clock) Start() {
	c.enable <- true
}

// Stop disables tick delivery.
func (c *Clock) Stop() {
	c.enable <- false
}

// SetFrequency reprograms the clock rate, mirroring rtc_write's validation.
func (c *Clock) SetFrequency(hz int) error {
	if !validRates[hz] {
		return fmt.Errorf("%w: %d", ErrBadFrequency, hz)
	}
	c.mu.Lock()
	c.freqHz = hz
	c.mu.Unlock()
	c.reset <- periodFor(hz)
	return nil
}

// Frequency returns the currently programmed rate.
func (c *Clock) Frequency() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.freqHz
}

// Shutdown stops the clock's goroutine permanently.
func (c *Clock) Shutdown() {
	close(c.done)
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(time.Second):
		slog.Warn("timed out waiting for RTC to finish")
	}
}

func (c *Clock) run(period time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	c.running = false

	for {
		select {
		case <-ticker.C:
			if c.running {
				select {
				case c.ticks <- struct{}{}:
				case <-c.done:
					return
				}
			}
		case c.running = <-c.enable:
		case newPeriod := <-c.reset:
			ticker.Reset(newPeriod)
		case <-c.done:
			return
		}
	}
}
