/*
 * miniker - Multi-terminal keyboard and video console.
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

// Package console implements the scan-code driven line editor and the
// three independent video back buffers described by the platform's
// terminal driver. Keyboard input always targets the active terminal;
// terminal_read/terminal_write, by contrast, always target the calling
// process's own terminal-id, even when that terminal isn't the one
// currently visible.
package console

import "sync"

const (
	Cols           = 80
	Rows           = 25
	NumTerminals   = 3
	commandMaxSize = 1024
)

// Cell is one character position of a text-mode video buffer.
type Cell struct {
	Ch   byte
	Attr byte
}

const defaultAttr = 0x07

// Modifier bits, matching the platform's keyboardflag byte.
const (
	FlagShift = 1 << 0
	FlagCaps  = 1 << 1
	FlagCtrl  = 1 << 2
	FlagAlt   = 1 << 3
)

// Terminal holds one virtual terminal's video buffer, command line editor
// state, and read-enabled gate.
type Terminal struct {
	mu sync.Mutex

	video [Rows * Cols]Cell
	row   int
	col   int

	commandBuffer [commandMaxSize]byte
	commandLength int
	cursorX       int

	readEnabled bool
	readySignal chan struct{}
}

func newTerminal() *Terminal {
	t := &Terminal{readySignal: make(chan struct{}, 1)}
	t.clearVideo()
	return t
}

func (t *Terminal) clearVideo() {
	for i := range t.video {
		t.video[i] = Cell{Ch: ' ', Attr: defaultAttr}
	}
	t.row, t.col = 0, 0
}

// Console owns the three terminals, the keyboard modifier state, and the
// id of the currently active (visible) terminal.
type Console struct {
	mu        sync.Mutex
	terminals [NumTerminals]*Terminal
	active    int
	modifier  byte
	pendingE0 bool

	physical [Rows * Cols]Cell
}

// New returns a Console with all three terminals cleared and terminal 0
// active.
func New() *Console {
	c := &Console{}
	for i := range c.terminals {
		c.terminals[i] = newTerminal()
	}
	return c
}

// Active returns the currently visible terminal id.
func (c *Console) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Terminal returns the terminal state for id, or nil if id is out of range.
func (c *Console) Terminal(id int) *Terminal {
	if id < 0 || id >= NumTerminals {
		return nil
	}
	return c.terminals[id]
}

// switchActive makes id the visible terminal and immediately mirrors it to
// physical video memory, matching MAKE_F1..F3's "load_video_memory" call.
func (c *Console) switchActive(id int) {
	c.mu.Lock()
	c.active = id
	c.mu.Unlock()
	c.Mirror()
}

// Mirror copies the active terminal's back buffer into physical video
// memory; it is the RTC-driven operation that decouples per-terminal text
// layout from the physical display.
func (c *Console) Mirror() {
	c.mu.Lock()
	active := c.terminals[c.active]
	c.mu.Unlock()

	active.mu.Lock()
	copy(c.physical[:], active.video[:])
	active.mu.Unlock()
}

// Physical returns a snapshot of the physical video frame as last mirrored.
func (c *Console) Physical() [Rows * Cols]Cell {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.physical
}
