/*
 * miniker - PIT tests.
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

package timer

import (
	"testing"
	"time"
)

type pitTest struct {
	pit     *PIT
	done    chan struct{}
	counter int
}

func (test *pitTest) runPIT() {
	for {
		select {
		case <-test.pit.Ticks():
			test.counter++
		case <-test.done:
			return
		}
	}
}

func TestPITTickRate(t *testing.T) {
	pit := NewPIT()
	test := pitTest{pit: pit, done: make(chan struct{})}
	defer close(test.done)

	go test.runPIT()

	pit.Start()
	time.Sleep(time.Second)
	pit.Stop()

	// ~33 Hz: expect roughly 33 ticks in a second, generous bounds for
	// scheduler jitter under test load.
	if test.counter < 20 || test.counter > 45 {
		t.Errorf("expected ~33 ticks in one second, got %d", test.counter)
	}
}

func TestPITSetPeriodChangesTickRate(t *testing.T) {
	pit := NewPIT()
	test := pitTest{pit: pit, done: make(chan struct{})}
	defer close(test.done)

	go test.runPIT()

	if err := pit.SetPeriod(10 * time.Millisecond); err != nil {
		t.Fatalf("SetPeriod() = %v, want nil", err)
	}
	pit.Start()
	time.Sleep(200 * time.Millisecond)
	pit.Stop()
	pit.Shutdown()

	// ~100 Hz: generous bounds for scheduler jitter under test load.
	if test.counter < 10 || test.counter > 30 {
		t.Errorf("expected ~20 ticks in 200ms at 10ms period, got %d", test.counter)
	}
}

func TestPITSetPeriodRejectsNonPositive(t *testing.T) {
	pit := NewPIT()
	defer pit.Shutdown()

	if err := pit.SetPeriod(0); err == nil {
		t.Errorf("SetPeriod(0) = nil, want error")
	}
	if err := pit.SetPeriod(-time.Second); err == nil {
		t.Errorf("SetPeriod(negative) = nil, want error")
	}
}

func TestPITStopSuppressesTicks(t *testing.T) {
	pit := NewPIT()
	test := pitTest{pit: pit, done: make(chan struct{})}
	defer close(test.done)

	go test.runPIT()

	pit.Start()
	time.Sleep(100 * time.Millisecond)
	pit.Stop()
	test.counter = 0
	time.Sleep(200 * time.Millisecond)

	if test.counter != 0 {
		t.Errorf("expected 0 ticks while stopped, got %d", test.counter)
	}
	pit.Shutdown()
}
