/*
 * miniker - terminal_read/terminal_write operations-vector functions.
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

package console

import "context"

// TerminalFile is the operations-vector implementation bound to a
// process's stdin/stdout fds at creation time. It always operates
// against its own termID, regardless of which terminal is currently
// visible on screen — this is the deliberate divergence from the
// platform's terminal_read, which waits on its own terminal but copies
// from whichever terminal happens to be active.
type TerminalFile struct {
	console *Console
	termID  int
}

// NewTerminalFile binds an operations vector to termID.
func NewTerminalFile(c *Console, termID int) *TerminalFile {
	return &TerminalFile{console: c, termID: termID}
}

// Read blocks until termID's read-enabled flag is set (Enter or Ctrl+L on
// that terminal), then copies up to len(buf) bytes of its command buffer
// into buf, resetting cursor, command length, and read-enabled. offset is
// accepted to satisfy device.Ops but is not meaningful for a terminal.
func (f *TerminalFile) Read(buf []byte, _ uint32) (int, error) {
	return f.ReadContext(context.Background(), buf)
}

// ReadContext is Read with cancellation, so a blocked reader can be
// released without a keypress; Read calls it with a context that is never
// cancelled.
func (f *TerminalFile) ReadContext(ctx context.Context, buf []byte) (int, error) {
	t := f.console.Terminal(f.termID)

	for {
		t.mu.Lock()
		enabled := t.readEnabled
		signal := t.readySignal
		t.mu.Unlock()

		if enabled {
			break
		}

		select {
		case <-signal:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(buf)
	if n > t.commandLength {
		n = t.commandLength
	}
	for i := 0; i < n; i++ {
		buf[i] = t.commandBuffer[i]
		t.commandBuffer[i] = 0
	}
	t.commandLength = 0
	t.cursorX = 0
	t.readEnabled = false

	return n, nil
}

// Write appends buf to termID's back buffer, wrapping lines at Cols and
// scrolling the buffer up when it overflows Rows.
func (f *TerminalFile) Write(buf []byte) (int, error) {
	t := f.console.Terminal(f.termID)
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, b := range buf {
		t.putc(b)
	}
	return len(buf), nil
}

// Close is a no-op; terminal fds have no underlying resource to release.
func (f *TerminalFile) Close() error {
	return nil
}

func (t *Terminal) putc(b byte) {
	switch b {
	case '\n':
		t.row++
		t.col = 0
	case '\r':
		t.col = 0
	default:
		t.video[t.row*Cols+t.col] = Cell{Ch: b, Attr: defaultAttr}
		t.col++
		if t.col >= Cols {
			t.col = 0
			t.row++
		}
	}
	if t.row >= Rows {
		t.scrollUp()
		t.row = Rows - 1
	}
}

func (t *Terminal) scrollUp() {
	copy(t.video[0:], t.video[Cols:])
	for i := (Rows - 1) * Cols; i < Rows*Cols; i++ {
		t.video[i] = Cell{Ch: ' ', Attr: defaultAttr}
	}
}
