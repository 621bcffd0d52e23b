/*
 * miniker - Scan-code decoding and the per-terminal line editor.
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

// Scan codes, matching the platform's set-1 keyboard map.
const (
	scMake1               = 0x02
	scMakeEquals          = 0x0D
	scMakeQ               = 0x10
	scMakeRSquareBracket  = 0x1B
	scMakeA               = 0x1E
	scMakeAccent          = 0x29
	scMakeBackslash       = 0x2B
	scMakeSlash           = 0x35
	scMakeSpace           = 0x39
	scMakeEnter           = 0x1C
	scMakeBksp            = 0x0E
	scMakeDelete          = 0x53
	scMakeCaps            = 0x3A
	scMakeLShift          = 0x2A
	scMakeRShift          = 0x36
	scBreakLShift         = 0xAA
	scBreakRShift         = 0xB6
	scMakeLCtrl           = 0x1D
	scBreakLCtrl          = 0x9D
	scMakeLAlt            = 0x38
	scBreakLAlt           = 0xB8
	scExtraPrefix         = 0xE0
	scMakeLArrow          = 0x4B
	scMakeRArrow          = 0x4D
	scMakeL               = 0x26
	scMakeF1              = 0x3B
	scMakeF3              = 0x3D
)

// charTable[shiftCapsIndex][scancode] gives the printable ASCII character
// for scancode under that shift/caps combination; 0 means "no mapping."
// Index: bit0 = shift, bit1 = caps, matching FLAG_SHIFT_CAPS_MASK.
var charTable = buildCharTable()

func buildCharTable() [4][128]byte {
	var t [4][128]byte

	unshifted := map[int]byte{
		0x02: '1', 0x03: '2', 0x04: '3', 0x05: '4', 0x06: '5', 0x07: '6',
		0x08: '7', 0x09: '8', 0x0A: '9', 0x0B: '0', 0x0C: '-', 0x0D: '=',
		0x10: 'q', 0x11: 'w', 0x12: 'e', 0x13: 'r', 0x14: 't', 0x15: 'y',
		0x16: 'u', 0x17: 'i', 0x18: 'o', 0x19: 'p', 0x1A: '[', 0x1B: ']',
		0x1E: 'a', 0x1F: 's', 0x20: 'd', 0x21: 'f', 0x22: 'g', 0x23: 'h',
		0x24: 'j', 0x25: 'k', 0x26: 'l', 0x27: ';', 0x28: '\'', 0x29: '`',
		0x2B: '\\', 0x2C: 'z', 0x2D: 'x', 0x2E: 'c', 0x2F: 'v',
		0x30: 'b', 0x31: 'n', 0x32: 'm', 0x33: ',', 0x34: '.', 0x35: '/',
		0x39: ' ',
	}
	shifted := map[int]byte{
		0x02: '!', 0x03: '@', 0x04: '#', 0x05: '$', 0x06: '%', 0x07: '^',
		0x08: '&', 0x09: '*', 0x0A: '(', 0x0B: ')', 0x0C: '_', 0x0D: '+',
		0x1A: '{', 0x1B: '}',
		0x27: ':', 0x28: '"', 0x29: '~', 0x2B: '|',
		0x33: '<', 0x34: '>', 0x35: '?',
		0x39: ' ',
	}

	for sc, ch := range unshifted {
		t[0][sc] = ch // no shift, no caps
		t[2][sc] = ch // caps only, digits/symbols unaffected by caps
	}
	for sc, ch := range shifted {
		t[1][sc] = ch // shift only
		t[3][sc] = ch // shift + caps
	}
	// Letters: caps flips case independently of shift; shift XOR caps
	// yields uppercase, matching FLAG_SHIFT_CAPS_MASK's table selection.
	for sc := 0x10; sc <= 0x19; sc++ {
		applyLetterCase(&t, sc, unshifted[sc])
	}
	for sc := 0x1E; sc <= 0x26; sc++ {
		applyLetterCase(&t, sc, unshifted[sc])
	}
	for sc := 0x2C; sc <= 0x32; sc++ {
		applyLetterCase(&t, sc, unshifted[sc])
	}
	return t
}

func applyLetterCase(t *[4][128]byte, sc int, lower byte) {
	upper := lower - ('a' - 'A')
	t[0][sc] = lower // nothing
	t[1][sc] = upper // shift
	t[2][sc] = upper // caps
	t[3][sc] = lower // shift+caps cancels out
}

// isPrintableScancode reports whether scancode is one of the letter/digit/
// symbol/space rows the platform's keyboard driver treats as insertable
// text, mirroring process_keyboard_input's range checks.
func isPrintableScancode(sc byte) bool {
	return (sc >= scMake1 && sc <= scMakeEquals) ||
		(sc >= scMakeQ && sc <= scMakeRSquareBracket) ||
		(sc >= scMakeA && sc <= scMakeAccent) ||
		(sc >= scMakeBackslash && sc <= scMakeSlash) ||
		sc == scMakeSpace
}

// Feed processes one scan code byte against the console's active
// terminal, the same way the platform's keyboard IRQ handler always
// edits whichever terminal is currently visible.
func (c *Console) Feed(scancode byte) {
	c.mu.Lock()
	if c.pendingE0 {
		c.pendingE0 = false
		active := c.terminals[c.active]
		c.mu.Unlock()
		c.feedExtra(active, scancode)
		return
	}

	switch {
	case scancode == scExtraPrefix:
		c.pendingE0 = true
		c.mu.Unlock()
		return
	case scancode >= scMakeF1 && scancode <= scMakeF3:
		if c.modifier&FlagAlt != 0 {
			newTerm := int(scancode&0x7) - 3
			if newTerm != c.active && newTerm >= 0 && newTerm < NumTerminals {
				c.mu.Unlock()
				c.switchActive(newTerm)
				return
			}
		}
		c.mu.Unlock()
		return
	}

	active := c.terminals[c.active]
	modifier := c.modifier
	c.mu.Unlock()

	c.feedPrimary(active, scancode, modifier)
}

func (c *Console) feedExtra(t *Terminal, scancode byte) {
	t.mu.Lock()
	switch scancode {
	case scMakeLArrow:
		if t.cursorX > 0 {
			t.cursorX--
		}
	case scMakeRArrow:
		if t.cursorX < t.commandLength {
			t.cursorX++
		}
	}
	t.mu.Unlock()

	if scancode == scMakeLCtrl {
		c.mu.Lock()
		c.modifier |= FlagCtrl
		c.mu.Unlock()
	} else if scancode == scBreakLCtrl {
		c.mu.Lock()
		c.modifier &^= FlagCtrl
		c.mu.Unlock()
	}
}

func (c *Console) feedPrimary(t *Terminal, scancode byte, modifier byte) {
	switch {
	case modifier&FlagCtrl == 0 && isPrintableScancode(scancode):
		t.insertChar(scancode, modifier)
		return
	case scancode == scMakeEnter:
		t.setReadEnabled(true)
		return
	case scancode == scMakeBksp:
		t.backspace()
		return
	case scancode == scMakeDelete:
		t.delete()
		return
	case scancode == scMakeCaps:
		c.mu.Lock()
		c.modifier ^= FlagCaps
		c.mu.Unlock()
		return
	case scancode == scMakeLShift || scancode == scMakeRShift:
		c.mu.Lock()
		c.modifier |= FlagShift
		c.mu.Unlock()
		return
	case scancode == scBreakLShift || scancode == scBreakRShift:
		c.mu.Lock()
		c.modifier &^= FlagShift
		c.mu.Unlock()
		return
	case scancode == scMakeLCtrl:
		c.mu.Lock()
		c.modifier |= FlagCtrl
		c.mu.Unlock()
		return
	case scancode == scBreakLCtrl:
		c.mu.Lock()
		c.modifier &^= FlagCtrl
		c.mu.Unlock()
		return
	case scancode == scMakeLAlt:
		c.mu.Lock()
		c.modifier |= FlagAlt
		c.mu.Unlock()
		return
	case scancode == scBreakLAlt:
		c.mu.Lock()
		c.modifier &^= FlagAlt
		c.mu.Unlock()
		return
	case modifier&FlagCtrl != 0 && scancode == scMakeL:
		t.clearCommand()
		c.mu.Lock()
		c.modifier &^= FlagCtrl
		c.mu.Unlock()
		c.clearScreen(t)
		return
	}
}

// insertChar places a visible character at the cursor, shifting trailing
// bytes right, capped at commandMaxSize-1 characters.
func (t *Terminal) insertChar(scancode byte, modifier byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.commandLength+1 >= commandMaxSize {
		return
	}

	index := (modifier & 0x3)
	ch := charTable[index][scancode]
	if ch == 0 {
		return
	}

	idx := t.cursorX
	for end := t.commandLength; end >= idx; end-- {
		t.commandBuffer[end+1] = t.commandBuffer[end]
	}
	t.commandBuffer[idx] = ch
	t.commandLength++
	t.cursorX++
}

func (t *Terminal) backspace() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cursorX <= 0 {
		return
	}
	idx := t.cursorX - 1
	for ; idx < t.commandLength; idx++ {
		t.commandBuffer[idx] = t.commandBuffer[idx+1]
	}
	t.commandLength--
	t.cursorX--
}

func (t *Terminal) delete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cursorX < 0 || t.cursorX >= t.commandLength {
		return
	}
	for idx := t.cursorX; idx < t.commandLength; idx++ {
		t.commandBuffer[idx] = t.commandBuffer[idx+1]
	}
	t.commandLength--
}

func (t *Terminal) clearCommand() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := 0; i < t.commandLength; i++ {
		t.commandBuffer[i] = 0
	}
	t.commandLength = 0
	t.cursorX = 0
	t.setReadEnabledLocked(true)
}

func (c *Console) clearScreen(t *Terminal) {
	t.mu.Lock()
	t.clearVideo()
	t.mu.Unlock()
	c.Mirror()
}

func (t *Terminal) setReadEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setReadEnabledLocked(enabled)
}

func (t *Terminal) setReadEnabledLocked(enabled bool) {
	t.readEnabled = enabled
	if enabled {
		select {
		case t.readySignal <- struct{}{}:
		default:
		}
	}
}
