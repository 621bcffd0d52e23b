/*
 * miniker - Cascaded interrupt controller.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package irq models a pair of cascaded 8259-style interrupt controllers.
// There is no real hardware behind it: masking an IRQ here gates whether the
// device goroutine that owns that line is allowed to deliver its tick to the
// kernel's dispatch channel, which is the software-simulator equivalent of
// the PIC's mask register gating the physical interrupt line.
package irq

import "sync"

// Line assignments, fixed by the platform this kernel targets.
const (
	PIT      = 0
	Keyboard = 1
	Cascade  = 2
	RTC      = 8
)

// Controller holds the master and slave mask bytes plus a count of EOIs
// seen per line. A set mask bit means the line is masked (disabled),
// mirroring the real 8259's active-low OCW1.
type Controller struct {
	mu      sync.Mutex
	master  uint8
	slave   uint8
	eoiSeen [16]int
}

// NewController returns a controller with every line masked, then enables
// the cascade line the way i8259_init wires the slave PIC into IRQ2.
func NewController() *Controller {
	c := &Controller{master: 0xff, slave: 0xff}
	c.EnableIRQ(Cascade)
	return c
}

// EnableIRQ unmasks irq.
func (c *Controller) EnableIRQ(irqNum int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if irqNum < 8 {
		c.master &^= 1 << uint(irqNum)
		return
	}
	c.slave &^= 1 << uint(irqNum-8)
}

// DisableIRQ masks irq.
func (c *Controller) DisableIRQ(irqNum int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if irqNum < 8 {
		c.master |= 1 << uint(irqNum)
		return
	}
	c.slave |= 1 << uint(irqNum-8)
}

// Enabled reports whether irq is currently unmasked.
func (c *Controller) Enabled(irqNum int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if irqNum < 8 {
		return c.master&(1<<uint(irqNum)) == 0
	}
	return c.slave&(1<<uint(irqNum-8)) == 0
}

// SendEOI acknowledges irq. A slave-side EOI additionally counts as an EOI
// of the cascade line on the master, the same double-acknowledgement
// send_eoi performs against the real hardware's master port.
func (c *Controller) SendEOI(irqNum int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.eoiSeen[irqNum]++
	if irqNum >= 8 {
		c.eoiSeen[Cascade]++
	}
}

// EOICount reports how many EOIs a line has received, for tests that
// assert an interrupt handler acknowledged the line it fired on.
func (c *Controller) EOICount(irqNum int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.eoiSeen[irqNum]
}
