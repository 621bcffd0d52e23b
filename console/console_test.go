package console

import (
	"context"
	"testing"
	"time"
)

func typeString(c *Console, s string) {
	for _, ch := range s {
		sc := scancodeFor(byte(ch))
		c.Feed(sc)
	}
}

// scancodeFor is a small test-only reverse lookup into charTable for the
// unshifted, no-caps row, sufficient for lowercase ASCII test input.
func scancodeFor(ch byte) byte {
	for sc, c := range charTable[0] {
		if c == ch {
			return byte(sc)
		}
	}
	return 0
}

func TestFeedInsertsPrintableCharacters(t *testing.T) {
	c := New()
	typeString(c, "ls")

	term := c.Terminal(0)
	term.mu.Lock()
	defer term.mu.Unlock()
	if term.commandLength != 2 || term.commandBuffer[0] != 'l' || term.commandBuffer[1] != 's' {
		t.Errorf("command buffer = %q (len %d), want \"ls\" (len 2)", term.commandBuffer[:term.commandLength], term.commandLength)
	}
}

func TestFeedBackspaceShiftsLeft(t *testing.T) {
	c := New()
	typeString(c, "cats")
	c.Feed(scMakeBksp)

	term := c.Terminal(0)
	term.mu.Lock()
	defer term.mu.Unlock()
	if term.commandLength != 3 || string(term.commandBuffer[:3]) != "cat" {
		t.Errorf("after backspace = %q, want cat", term.commandBuffer[:term.commandLength])
	}
}

func TestFeedEnterEnablesRead(t *testing.T) {
	c := New()
	typeString(c, "hi")
	c.Feed(scMakeEnter)

	term := c.Terminal(0)
	term.mu.Lock()
	enabled := term.readEnabled
	term.mu.Unlock()
	if !enabled {
		t.Errorf("Enter should set read-enabled on the active terminal")
	}
}

func TestAltF2SwitchesActiveWithoutDisturbingOtherBuffer(t *testing.T) {
	c := New()
	typeString(c, "term0text")

	c.Feed(scMakeLAlt)
	c.Feed(scMakeF1 + 1) // F2
	c.Feed(scBreakLAlt)

	if c.Active() != 1 {
		t.Fatalf("Active() after Alt+F2 = %d, want 1", c.Active())
	}

	term0 := c.Terminal(0)
	term0.mu.Lock()
	defer term0.mu.Unlock()
	if string(term0.commandBuffer[:term0.commandLength]) != "term0text" {
		t.Errorf("terminal 0's buffer was disturbed by switching away: %q", term0.commandBuffer[:term0.commandLength])
	}
}

func TestCtrlLClearsAndReleasesReader(t *testing.T) {
	c := New()
	typeString(c, "pending")

	file := NewTerminalFile(c, 0)
	done := make(chan struct{})
	var n int
	go func() {
		buf := make([]byte, 16)
		n, _ = file.Read(buf, 0)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	c.Feed(scMakeLCtrl)
	c.Feed(scMakeL)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Ctrl+L did not release a blocked terminal reader")
	}
	if n != 0 {
		t.Errorf("Ctrl+L should release the reader with a 0-length buffer, got %d", n)
	}
}

func TestTerminalReadOwnTerminalNotActive(t *testing.T) {
	c := New()

	// Process lives on terminal 1, which is not the visible terminal.
	term1 := c.Terminal(1)
	term1.mu.Lock()
	copy(term1.commandBuffer[:], []byte("bgcmd"))
	term1.commandLength = 5
	term1.readEnabled = true
	term1.mu.Unlock()

	file := NewTerminalFile(c, 1)
	buf := make([]byte, 16)
	n, err := file.Read(buf, 0)
	if err != nil {
		t.Fatalf("Read() = %v, want nil", err)
	}
	if string(buf[:n]) != "bgcmd" {
		t.Errorf("Read() on background terminal = %q, want bgcmd", buf[:n])
	}
}

func TestReadContextCancellable(t *testing.T) {
	c := New()
	file := NewTerminalFile(c, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 16)
		_, err := file.ReadContext(ctx, buf)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Errorf("ReadContext() after cancel = nil, want context error")
		}
	case <-time.After(time.Second):
		t.Fatal("ReadContext did not return after cancellation")
	}
}

func TestWritePutsCharactersIntoBackBuffer(t *testing.T) {
	c := New()
	file := NewTerminalFile(c, 2)

	n, err := file.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Write() = %d, %v, want 5, nil", n, err)
	}

	term := c.Terminal(2)
	term.mu.Lock()
	defer term.mu.Unlock()
	for i, want := range []byte("hello") {
		if term.video[i].Ch != want {
			t.Errorf("video[%d] = %q, want %q", i, term.video[i].Ch, want)
		}
	}
}

func TestMirrorCopiesOnlyActiveTerminal(t *testing.T) {
	c := New()
	NewTerminalFile(c, 0).Write([]byte("A"))
	NewTerminalFile(c, 1).Write([]byte("B"))

	c.Mirror()
	phys := c.Physical()
	if phys[0].Ch != 'A' {
		t.Errorf("Physical()[0] = %q, want 'A' (terminal 0 is active)", phys[0].Ch)
	}

	c.switchActive(1)
	phys = c.Physical()
	if phys[0].Ch != 'B' {
		t.Errorf("Physical()[0] after switch = %q, want 'B'", phys[0].Ch)
	}
}
